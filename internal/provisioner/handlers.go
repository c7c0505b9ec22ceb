package provisioner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/poddle/compute/internal/cluster"
	"github.com/poddle/compute/internal/db"
	"github.com/poddle/compute/internal/domain"
)

func workloadSpecFromCreate(item domain.CreateWorkItem, secretName string) cluster.WorkloadSpec {
	return cluster.WorkloadSpec{
		Image:            item.Image,
		Port:             item.Port,
		DesiredReplicas:  item.DesiredReplicas,
		CPURequestMillis: item.ResourceSpec.CPURequestMillicores,
		CPULimitMillis:   item.ResourceSpec.CPULimitMillicores,
		MemoryRequestMB:  item.ResourceSpec.MemoryRequestMB,
		MemoryLimitMB:    item.ResourceSpec.MemoryLimitMB,
		EnvironmentVars:  item.EnvironmentVars,
		SecretName:       secretName,
		Labels:           domain.OwnershipLabels(item.ProjectID, item.DeploymentID),
	}
}

// handleCreate implements the ordered, idempotent create lifecycle: ensure
// namespace, optionally bind a secret store, create workload/service/route.
// Every step tolerates "already exists" so a retry after partial failure
// converges instead of erroring.
func (p *Provisioner) handleCreate(ctx context.Context, item domain.CreateWorkItem) error {
	secretKeys := make([]string, 0, len(item.Secrets))
	for k := range item.Secrets {
		secretKeys = append(secretKeys, k)
	}
	row := &domain.Deployment{
		ID:              item.DeploymentID,
		UserID:          item.UserID,
		ProjectID:       item.ProjectID,
		Name:            item.Name,
		Image:           item.Image,
		Port:            item.Port,
		DesiredReplicas: item.DesiredReplicas,
		Resources:       item.ResourceSpec,
		EnvironmentVars: item.EnvironmentVars,
		SecretKeys:      secretKeys,
		Labels:          item.Labels,
		Status:          domain.StatusProvisioning,
		Subdomain:       item.Subdomain,
		CustomDomain:    item.Domain,
	}
	if err := p.repo.Create(ctx, row); err != nil {
		return fmt.Errorf("create deployment row: %w", err)
	}

	affected, err := p.repo.UpdateStatus(ctx, item.DeploymentID, domain.StatusProvisioning)
	if err != nil {
		return fmt.Errorf("mark provisioning: %w", err)
	}
	if affected == 0 {
		p.log.Warn("mark provisioning affected zero rows", zap.String("deployment_id", item.DeploymentID.String()))
	}
	p.publish(ctx, item.ProjectID, item.DeploymentID, domain.StatusProvisioning)

	ns := domain.Namespace(item.UserID)
	name := domain.ResourceName(item.DeploymentID)

	if _, err := p.gw.EnsureNamespace(ctx, item.UserID); err != nil {
		return fmt.Errorf("ensure namespace: %w", err)
	}

	secretName := ""
	if len(item.Secrets) > 0 {
		secretName = name
		path := domain.SecretStorePath(item.UserID, item.DeploymentID)
		if err := p.secrets.WriteSecrets(ctx, path, item.Secrets); err != nil {
			return fmt.Errorf("write secrets: %w", err)
		}
		if err := p.gw.BindSecretStore(ctx, ns, name, path, "1h", name); err != nil {
			return fmt.Errorf("bind secret store: %w", err)
		}
	}

	spec := workloadSpecFromCreate(item, secretName)
	if err := p.gw.CreateWorkload(ctx, ns, name, spec); err != nil {
		return fmt.Errorf("create workload: %w", err)
	}

	labels := domain.OwnershipLabels(item.ProjectID, item.DeploymentID)
	if err := p.gw.CreateService(ctx, ns, name, item.Port, labels); err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	hosts := cluster.RouteHosts{Subdomain: item.Subdomain, CustomDomain: item.Domain}
	if err := p.gw.CreateRoute(ctx, ns, name, hosts, labels); err != nil {
		return fmt.Errorf("create route: %w", err)
	}

	if err := p.cache.EnsureDeploymentKeys(ctx, item.DeploymentID); err != nil {
		p.log.Warn("ensure deployment cache keys failed", zap.Error(err))
	}

	affected, err = p.repo.UpdateStatus(ctx, item.DeploymentID, domain.StatusStarting)
	if err != nil {
		return fmt.Errorf("mark starting: %w", err)
	}
	if affected == 0 {
		p.log.Warn("mark starting affected zero rows", zap.String("deployment_id", item.DeploymentID.String()))
	}
	p.publish(ctx, item.ProjectID, item.DeploymentID, domain.StatusStarting)
	return nil
}

// handleUpdate applies the minimum patch for each present replicas, image,
// environment, resource, subdomain, domain, and secrets field; the item's
// name, port, and labels are not applied. Fields are independent: a
// workload not found yet (create still in flight) surfaces as an error so
// the DLX retries it, per the "not found during update is transient" policy.
func (p *Provisioner) handleUpdate(ctx context.Context, item domain.UpdateWorkItem) error {
	ns := domain.Namespace(item.UserID)
	name := domain.ResourceName(item.DeploymentID)

	dbFields := map[string]interface{}{}

	if item.DesiredReplicas != nil {
		if err := p.gw.PatchWorkloadReplicas(ctx, ns, name, *item.DesiredReplicas); err != nil {
			return fmt.Errorf("patch replicas: %w", err)
		}
		dbFields["desired_replicas"] = *item.DesiredReplicas
	}

	if item.Image != nil || item.EnvironmentVars != nil || item.ResourceSpec != nil {
		existing, err := p.repo.Get(ctx, item.DeploymentID)
		if err != nil {
			return fmt.Errorf("load deployment for patch: %w", err)
		}
		spec := cluster.WorkloadSpec{
			Image:            existing.Image,
			Port:             existing.Port,
			DesiredReplicas:  existing.DesiredReplicas,
			CPURequestMillis: existing.Resources.CPURequestMillicores,
			CPULimitMillis:   existing.Resources.CPULimitMillicores,
			MemoryRequestMB:  existing.Resources.MemoryRequestMB,
			MemoryLimitMB:    existing.Resources.MemoryLimitMB,
			EnvironmentVars:  existing.EnvironmentVars,
			Labels:           domain.OwnershipLabels(item.ProjectID, item.DeploymentID),
		}
		if item.Image != nil {
			spec.Image = *item.Image
			dbFields["image"] = *item.Image
		}
		if item.EnvironmentVars != nil {
			spec.EnvironmentVars = item.EnvironmentVars
			dbFields["environment_vars"] = db.StringMap(item.EnvironmentVars)
		}
		if item.ResourceSpec != nil {
			spec.CPURequestMillis = item.ResourceSpec.CPURequestMillicores
			spec.CPULimitMillis = item.ResourceSpec.CPULimitMillicores
			spec.MemoryRequestMB = item.ResourceSpec.MemoryRequestMB
			spec.MemoryLimitMB = item.ResourceSpec.MemoryLimitMB
			dbFields["resources"] = db.ResourceSpecColumn{
				CPURequestMillicores: item.ResourceSpec.CPURequestMillicores,
				CPULimitMillicores:   item.ResourceSpec.CPULimitMillicores,
				MemoryRequestMB:      item.ResourceSpec.MemoryRequestMB,
				MemoryLimitMB:        item.ResourceSpec.MemoryLimitMB,
			}
		}
		if err := p.gw.PatchWorkloadSpec(ctx, ns, name, spec); err != nil {
			return fmt.Errorf("patch workload spec: %w", err)
		}
	}

	if item.Subdomain != nil || item.Domain != nil {
		existing, err := p.repo.Get(ctx, item.DeploymentID)
		if err != nil {
			return fmt.Errorf("load deployment for route replace: %w", err)
		}
		hosts := cluster.RouteHosts{Subdomain: existing.Subdomain, CustomDomain: existing.CustomDomain}
		if item.Subdomain != nil {
			hosts.Subdomain = *item.Subdomain
			dbFields["subdomain"] = *item.Subdomain
		}
		if item.Domain != nil {
			hosts.CustomDomain = *item.Domain
			dbFields["custom_domain"] = *item.Domain
		}
		labels := domain.OwnershipLabels(item.ProjectID, item.DeploymentID)
		if err := p.gw.DeleteRoute(ctx, ns, name); err != nil {
			return fmt.Errorf("delete route for replace: %w", err)
		}
		if err := p.gw.CreateRoute(ctx, ns, name, hosts, labels); err != nil {
			return fmt.Errorf("replace route: %w", err)
		}
	}

	if len(item.Secrets) > 0 {
		path := domain.SecretStorePath(item.UserID, item.DeploymentID)
		if err := p.secrets.WriteSecrets(ctx, path, item.Secrets); err != nil {
			return fmt.Errorf("overwrite secrets: %w", err)
		}
	}

	if err := p.repo.Patch(ctx, item.DeploymentID, dbFields); err != nil {
		return fmt.Errorf("patch deployment row: %w", err)
	}
	return nil
}

// handleDelete tears down cluster objects best-effort (404 is success on
// every step) before removing the deployment row.
func (p *Provisioner) handleDelete(ctx context.Context, item domain.DeleteWorkItem) error {
	ns := domain.Namespace(item.UserID)
	name := domain.ResourceName(item.DeploymentID)

	if err := p.gw.DeleteRoute(ctx, ns, name); err != nil {
		return fmt.Errorf("delete route: %w", err)
	}
	if err := p.gw.DeleteService(ctx, ns, name); err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if err := p.gw.DeleteWorkload(ctx, ns, name); err != nil {
		return fmt.Errorf("delete workload: %w", err)
	}
	if err := p.gw.DeleteSecretStore(ctx, ns, name); err != nil {
		return fmt.Errorf("delete secret store: %w", err)
	}

	if err := p.cache.DeleteDeploymentKeys(ctx, item.DeploymentID); err != nil {
		p.log.Warn("delete deployment cache keys failed", zap.Error(err))
	}

	if err := p.repo.Delete(ctx, item.DeploymentID); err != nil {
		return fmt.Errorf("delete deployment row: %w", err)
	}
	return nil
}
