package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNamespaceAndResourceName(t *testing.T) {
	u := uuid.MustParse("12345678-90ab-cdef-1234-567890abcdef")
	d := uuid.MustParse("abcdef12-3456-7890-abcd-ef1234567890")

	ns := Namespace(u)
	if ns != "user-12345678" {
		t.Errorf("Namespace() = %q, want user-12345678", ns)
	}
	name := ResourceName(d)
	if name != "app-abcdef12" {
		t.Errorf("ResourceName() = %q, want app-abcdef12", name)
	}
}

func TestOwnershipLabels(t *testing.T) {
	p := uuid.New()
	d := uuid.New()
	labels := OwnershipLabels(p, d)
	if labels[LabelManagedBy] != ManagedByValue {
		t.Errorf("expected managed-by=%s", ManagedByValue)
	}
	if labels[LabelProjectID] != p.String() || labels[LabelDeploymentID] != d.String() {
		t.Errorf("expected project-id/deployment-id labels to match input uuids")
	}
}

func TestSecretStorePath(t *testing.T) {
	u := uuid.New()
	d := uuid.New()
	path := SecretStorePath(u, d)
	if !strings.HasPrefix(path, Namespace(u)+"/") {
		t.Errorf("expected secret store path to be namespaced, got %q", path)
	}
}
