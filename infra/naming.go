package main

import "strings"

// resourceNaming provides consistent naming for the stack's cloud resources
type resourceNaming struct {
	Environment string
	Project     string
}

func newResourceNaming(environment, project string) *resourceNaming {
	return &resourceNaming{Environment: environment, Project: project}
}

// name returns a standardized resource name
func (rn *resourceNaming) name(resourceType string) string {
	return strings.Join([]string{rn.Project, rn.Environment, resourceType}, "-")
}

// tags returns standardized tags for cloud resources
func (rn *resourceNaming) tags() map[string]string {
	return map[string]string{
		"Environment": rn.Environment,
		"Project":     rn.Project,
		"ManagedBy":   "pulumi",
	}
}
