package kube

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
)

// DeploymentReady reports whether all desired replicas of a deployment are
// available.
func (c *Client) DeploymentReady(ctx context.Context, namespace, name string) (bool, error) {
	dep, err := c.cli.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get deployment %s/%s: %w", namespace, name, err)
	}
	return deploymentAvailable(dep), nil
}

// WaitDeploymentReady polls until the deployment is fully available or the
// timeout elapses.
func (c *Client) WaitDeploymentReady(ctx context.Context, namespace, name string, timeout time.Duration) error {
	err := wait.PollUntilContextTimeout(ctx, 5*time.Second, timeout, true, func(ctx context.Context) (bool, error) {
		dep, err := c.cli.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			if apierrors.IsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		if deploymentAvailable(dep) {
			return true, nil
		}
		logrus.Debugf("Waiting for deployment %s/%s: %d/%d replicas available",
			namespace, name, dep.Status.AvailableReplicas, desiredReplicas(dep))
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("deployment %s/%s not ready within %s: %w", namespace, name, timeout, err)
	}
	return nil
}

// ListDeployments returns deployment names with their readiness in the
// namespace, used by the verify step.
func (c *Client) ListDeployments(ctx context.Context, namespace string) (map[string]bool, error) {
	deps, err := c.cli.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments in %s: %w", namespace, err)
	}

	ready := make(map[string]bool, len(deps.Items))
	for i := range deps.Items {
		dep := &deps.Items[i]
		ready[dep.Name] = deploymentAvailable(dep)
	}
	return ready, nil
}

func deploymentAvailable(dep *appsv1.Deployment) bool {
	desired := desiredReplicas(dep)
	return desired > 0 &&
		dep.Status.UpdatedReplicas >= desired &&
		dep.Status.AvailableReplicas >= desired
}

func desiredReplicas(dep *appsv1.Deployment) int32 {
	if dep.Spec.Replicas == nil {
		return 1
	}
	return *dep.Spec.Replicas
}
