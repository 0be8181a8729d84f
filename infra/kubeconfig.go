package main

import (
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// generateKubeconfig renders an exec-auth kubeconfig for the EKS cluster,
// using `aws eks get-token` so no long-lived credentials land on disk.
func generateKubeconfig(clusterName, endpoint, certificateAuthority pulumi.StringOutput, region string) pulumi.StringOutput {
	return pulumi.Sprintf(`apiVersion: v1
kind: Config
current-context: %s
contexts:
- name: %s
  context:
    cluster: %s
    user: %s
clusters:
- name: %s
  cluster:
    certificate-authority-data: %s
    server: %s
users:
- name: %s
  user:
    exec:
      apiVersion: client.authentication.k8s.io/v1beta1
      command: aws
      args:
        - eks
        - get-token
        - --cluster-name
        - %s
        - --region
        - %s
`, clusterName, clusterName, clusterName, clusterName, clusterName, certificateAuthority, endpoint, clusterName, clusterName, region)
}
