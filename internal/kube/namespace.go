package kube

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	v1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const managedByLabel = "app.kubernetes.io/managed-by"

// EnsureNamespaces creates any of the given namespaces that do not exist.
// Returns the names that were created.
func (c *Client) EnsureNamespaces(ctx context.Context, names []string) ([]string, error) {
	var created []string

	for _, name := range names {
		_, err := c.cli.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
		if err == nil {
			logrus.Debugf("Namespace %s already exists", name)
			continue
		}
		if !apierrors.IsNotFound(err) {
			return created, fmt.Errorf("failed to check namespace %s: %w", name, err)
		}

		ns := &v1.Namespace{
			ObjectMeta: metav1.ObjectMeta{
				Name: name,
				Labels: map[string]string{
					managedByLabel: "llmstack",
				},
			},
		}
		if _, err := c.cli.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{}); err != nil {
			if apierrors.IsAlreadyExists(err) {
				continue
			}
			return created, fmt.Errorf("failed to create namespace %s: %w", name, err)
		}

		logrus.Infof("Created namespace %s", name)
		created = append(created, name)
	}

	return created, nil
}

// SecretExists reports whether a native Secret is present, used to verify
// that External Secrets Operator has synced a store entry.
func (c *Client) SecretExists(ctx context.Context, namespace, name string) (bool, error) {
	_, err := c.cli.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check secret %s/%s: %w", namespace, name, err)
	}
	return true, nil
}
