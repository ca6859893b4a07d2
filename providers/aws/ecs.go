package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
)

func (p *Provider) createCluster(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	name := strAttr(attrs, "name")

	resp, err := p.ecsClient.CreateCluster(ctx, &ecs.CreateClusterInput{
		ClusterName: &name,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to create cluster: %w", err)
	}

	outputs := map[string]any{
		"name": *resp.Cluster.ClusterName,
		"arn":  *resp.Cluster.ClusterArn,
	}
	return *resp.Cluster.ClusterName, outputs, nil
}

func (p *Provider) deleteCluster(ctx context.Context, providerID string) error {
	_, err := p.ecsClient.DeleteCluster(ctx, &ecs.DeleteClusterInput{
		Cluster: &providerID,
	})
	if err != nil && !isNotFound(err, "ClusterNotFoundException") {
		return fmt.Errorf("failed to delete cluster %s: %w", providerID, err)
	}
	return nil
}

func (p *Provider) registerTaskDefinition(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	family := strAttr(attrs, "family")
	cpu := strAttr(attrs, "cpu")
	memory := strAttr(attrs, "memory")

	var containerDefs []types.ContainerDefinition
	if raw, ok := attrs["containerDefinitions"].([]any); ok {
		for _, entry := range raw {
			c, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			name := strAttr(c, "name")
			image := strAttr(c, "image")
			memoryMiB := int32Attr(c, "memory", 0)

			var mappings []types.PortMapping
			if ports, ok := c["portMappings"].([]any); ok {
				for _, pm := range ports {
					m, ok := pm.(map[string]any)
					if !ok {
						continue
					}
					containerPort := int32Attr(m, "containerPort", 0)
					mappings = append(mappings, types.PortMapping{
						ContainerPort: &containerPort,
						Protocol:      types.TransportProtocol(strAttr(m, "protocol")),
					})
				}
			}

			def := types.ContainerDefinition{
				Name:         &name,
				Image:        &image,
				Cpu:          int32Attr(c, "cpu", 0),
				PortMappings: mappings,
			}
			if memoryMiB > 0 {
				def.Memory = &memoryMiB
			}
			containerDefs = append(containerDefs, def)
		}
	}

	input := &ecs.RegisterTaskDefinitionInput{
		Family:                  &family,
		ContainerDefinitions:    containerDefs,
		NetworkMode:             types.NetworkMode(strAttr(attrs, "networkMode")),
		RequiresCompatibilities: []types.Compatibility{types.CompatibilityFargate},
	}
	if cpu != "" {
		input.Cpu = &cpu
	}
	if memory != "" {
		input.Memory = &memory
	}

	resp, err := p.ecsClient.RegisterTaskDefinition(ctx, input)
	if err != nil {
		return "", nil, fmt.Errorf("failed to register task definition: %w", err)
	}

	arn := *resp.TaskDefinition.TaskDefinitionArn
	outputs := map[string]any{
		"arn":      arn,
		"family":   *resp.TaskDefinition.Family,
		"revision": int(resp.TaskDefinition.Revision),
	}
	return arn, outputs, nil
}

func (p *Provider) deregisterTaskDefinition(ctx context.Context, providerID string) error {
	_, err := p.ecsClient.DeregisterTaskDefinition(ctx, &ecs.DeregisterTaskDefinitionInput{
		TaskDefinition: &providerID,
	})
	if err != nil && !isNotFound(err, "ClientException") {
		return fmt.Errorf("failed to deregister task definition %s: %w", providerID, err)
	}
	return nil
}

// Services are addressed as "<cluster>/<service>" since every ECS service
// call needs both halves.
func serviceID(cluster, name string) string {
	return cluster + "/" + name
}

func splitServiceID(providerID string) (cluster, name string) {
	cluster, name, ok := strings.Cut(providerID, "/")
	if !ok {
		return "default", providerID
	}
	return cluster, name
}

func (p *Provider) createService(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	name := strAttr(attrs, "name")
	cluster := strAttr(attrs, "cluster")
	taskDef := strAttr(attrs, "taskDefinition")
	desiredCount := int32Attr(attrs, "desiredCount", 1)

	input := &ecs.CreateServiceInput{
		ServiceName:    &name,
		Cluster:        &cluster,
		TaskDefinition: &taskDef,
		DesiredCount:   &desiredCount,
		LaunchType:     types.LaunchType(strAttr(attrs, "launchType")),
	}

	if nc, ok := attrs["networkConfiguration"].(map[string]any); ok {
		assignPublic := types.AssignPublicIpDisabled
		if b, ok := nc["assignPublicIp"].(bool); ok && b {
			assignPublic = types.AssignPublicIpEnabled
		}
		input.NetworkConfiguration = &types.NetworkConfiguration{
			AwsvpcConfiguration: &types.AwsVpcConfiguration{
				Subnets:        strListAttr(nc, "subnets"),
				SecurityGroups: strListAttr(nc, "securityGroups"),
				AssignPublicIp: assignPublic,
			},
		}
	}

	if raw, ok := attrs["loadBalancers"].([]any); ok {
		var lbs []types.LoadBalancer
		for _, entry := range raw {
			lb, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			tgArn := strAttr(lb, "targetGroupArn")
			containerName := strAttr(lb, "containerName")
			containerPort := int32Attr(lb, "containerPort", 0)
			lbs = append(lbs, types.LoadBalancer{
				TargetGroupArn: &tgArn,
				ContainerName:  &containerName,
				ContainerPort:  &containerPort,
			})
		}
		input.LoadBalancers = lbs
	}

	resp, err := p.ecsClient.CreateService(ctx, input)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create service: %w", err)
	}

	outputs := map[string]any{
		"name":    *resp.Service.ServiceName,
		"arn":     *resp.Service.ServiceArn,
		"cluster": cluster,
	}
	return serviceID(cluster, *resp.Service.ServiceName), outputs, nil
}

func (p *Provider) readService(ctx context.Context, providerID string) (map[string]any, bool, error) {
	cluster, name := splitServiceID(providerID)

	resp, err := p.ecsClient.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  &cluster,
		Services: []string{name},
	})
	if err != nil {
		if isNotFound(err, "ClusterNotFoundException", "ServiceNotFoundException") {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to describe service %s: %w", providerID, err)
	}
	if len(resp.Services) == 0 || *resp.Services[0].Status == "INACTIVE" {
		return nil, false, nil
	}

	svc := resp.Services[0]
	outputs := map[string]any{
		"name":    *svc.ServiceName,
		"arn":     *svc.ServiceArn,
		"cluster": cluster,
	}
	return outputs, true, nil
}

func (p *Provider) updateService(ctx context.Context, providerID string, attrs map[string]any) (map[string]any, error) {
	cluster, name := splitServiceID(providerID)
	desiredCount := int32Attr(attrs, "desiredCount", 1)

	input := &ecs.UpdateServiceInput{
		Cluster:      &cluster,
		Service:      &name,
		DesiredCount: &desiredCount,
	}
	if taskDef := strAttr(attrs, "taskDefinition"); taskDef != "" {
		input.TaskDefinition = &taskDef
	}

	resp, err := p.ecsClient.UpdateService(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to update service %s: %w", providerID, err)
	}

	return map[string]any{
		"name":    *resp.Service.ServiceName,
		"arn":     *resp.Service.ServiceArn,
		"cluster": cluster,
	}, nil
}

func (p *Provider) deleteService(ctx context.Context, providerID string) error {
	cluster, name := splitServiceID(providerID)
	force := true

	_, err := p.ecsClient.DeleteService(ctx, &ecs.DeleteServiceInput{
		Cluster: &cluster,
		Service: &name,
		Force:   &force,
	})
	if err != nil && !isNotFound(err, "ClusterNotFoundException", "ServiceNotFoundException") {
		return fmt.Errorf("failed to delete service %s: %w", providerID, err)
	}
	return nil
}

// serviceReady reports steady state: the primary deployment has every
// desired task running and no prior deployment is draining.
func (p *Provider) serviceReady(ctx context.Context, outputs map[string]any) (bool, error) {
	cluster := strAttr(outputs, "cluster")
	name := strAttr(outputs, "name")

	resp, err := p.ecsClient.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  &cluster,
		Services: []string{name},
	})
	if err != nil {
		return false, fmt.Errorf("failed to describe service %s: %w", name, err)
	}
	if len(resp.Services) == 0 {
		return false, fmt.Errorf("service %s not found in cluster %s", name, cluster)
	}

	svc := resp.Services[0]
	if len(svc.Deployments) != 1 {
		return false, nil
	}
	return svc.RunningCount == svc.DesiredCount, nil
}
