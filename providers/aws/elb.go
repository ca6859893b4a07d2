package aws

import (
	"context"
	"fmt"

	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
)

func (p *Provider) createLoadBalancer(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	name := strAttr(attrs, "name")

	input := &elbv2.CreateLoadBalancerInput{
		Name:           &name,
		Subnets:        strListAttr(attrs, "subnets"),
		SecurityGroups: strListAttr(attrs, "securityGroups"),
		Scheme:         types.LoadBalancerSchemeEnum(strAttr(attrs, "scheme")),
		Type:           types.LoadBalancerTypeEnum(strAttr(attrs, "type")),
	}

	resp, err := p.elbClient.CreateLoadBalancer(ctx, input)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create load balancer: %w", err)
	}

	lb := resp.LoadBalancers[0]
	outputs := map[string]any{
		"name":    *lb.LoadBalancerName,
		"arn":     *lb.LoadBalancerArn,
		"dnsName": *lb.DNSName,
	}
	if lb.CanonicalHostedZoneId != nil {
		outputs["hostedZoneId"] = *lb.CanonicalHostedZoneId
	}
	return *lb.LoadBalancerArn, outputs, nil
}

func (p *Provider) readLoadBalancer(ctx context.Context, providerID string) (map[string]any, bool, error) {
	resp, err := p.elbClient.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{
		LoadBalancerArns: []string{providerID},
	})
	if err != nil {
		if isNotFound(err, "LoadBalancerNotFound") {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to describe load balancer %s: %w", providerID, err)
	}
	if len(resp.LoadBalancers) == 0 {
		return nil, false, nil
	}

	lb := resp.LoadBalancers[0]
	outputs := map[string]any{
		"name":    *lb.LoadBalancerName,
		"arn":     *lb.LoadBalancerArn,
		"dnsName": *lb.DNSName,
	}
	return outputs, true, nil
}

func (p *Provider) deleteLoadBalancer(ctx context.Context, providerID string) error {
	_, err := p.elbClient.DeleteLoadBalancer(ctx, &elbv2.DeleteLoadBalancerInput{
		LoadBalancerArn: &providerID,
	})
	if err != nil && !isNotFound(err, "LoadBalancerNotFound") {
		return fmt.Errorf("failed to delete load balancer %s: %w", providerID, err)
	}
	return nil
}

func (p *Provider) loadBalancerReady(ctx context.Context, outputs map[string]any) (bool, error) {
	arn := strAttr(outputs, "arn")

	resp, err := p.elbClient.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{
		LoadBalancerArns: []string{arn},
	})
	if err != nil {
		return false, fmt.Errorf("failed to describe load balancer %s: %w", arn, err)
	}
	if len(resp.LoadBalancers) == 0 {
		return false, fmt.Errorf("load balancer %s not found", arn)
	}

	switch resp.LoadBalancers[0].State.Code {
	case types.LoadBalancerStateEnumActive:
		return true, nil
	case types.LoadBalancerStateEnumFailed:
		return false, fmt.Errorf("load balancer %s entered failed state", arn)
	default:
		return false, nil
	}
}

func (p *Provider) createTargetGroup(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	name := strAttr(attrs, "name")
	port := int32Attr(attrs, "port", 80)
	vpcID := strAttr(attrs, "vpcId")

	input := &elbv2.CreateTargetGroupInput{
		Name:       &name,
		Port:       &port,
		Protocol:   types.ProtocolEnum(strAttr(attrs, "protocol")),
		VpcId:      &vpcID,
		TargetType: types.TargetTypeEnum(strAttr(attrs, "targetType")),
	}
	if path := strAttr(attrs, "healthCheckPath"); path != "" {
		input.HealthCheckPath = &path
	}

	resp, err := p.elbClient.CreateTargetGroup(ctx, input)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create target group: %w", err)
	}

	tg := resp.TargetGroups[0]
	outputs := map[string]any{
		"name": *tg.TargetGroupName,
		"arn":  *tg.TargetGroupArn,
	}
	return *tg.TargetGroupArn, outputs, nil
}

func (p *Provider) deleteTargetGroup(ctx context.Context, providerID string) error {
	_, err := p.elbClient.DeleteTargetGroup(ctx, &elbv2.DeleteTargetGroupInput{
		TargetGroupArn: &providerID,
	})
	if err != nil && !isNotFound(err, "TargetGroupNotFound") {
		return fmt.Errorf("failed to delete target group %s: %w", providerID, err)
	}
	return nil
}

func listenerActions(attrs map[string]any) []types.Action {
	raw, ok := attrs["defaultActions"].([]any)
	if !ok {
		return nil
	}
	var actions []types.Action
	for _, entry := range raw {
		a, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		tgArn := strAttr(a, "targetGroupArn")
		actions = append(actions, types.Action{
			Type:           types.ActionTypeEnum(strAttr(a, "type")),
			TargetGroupArn: &tgArn,
		})
	}
	return actions
}

func (p *Provider) createListener(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	lbArn := strAttr(attrs, "loadBalancerArn")
	port := int32Attr(attrs, "port", 443)

	input := &elbv2.CreateListenerInput{
		LoadBalancerArn: &lbArn,
		Port:            &port,
		Protocol:        types.ProtocolEnum(strAttr(attrs, "protocol")),
		DefaultActions:  listenerActions(attrs),
	}
	if certArn := strAttr(attrs, "certificateArn"); certArn != "" {
		input.Certificates = []types.Certificate{{CertificateArn: &certArn}}
	}

	resp, err := p.elbClient.CreateListener(ctx, input)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create listener: %w", err)
	}

	arn := *resp.Listeners[0].ListenerArn
	return arn, map[string]any{"arn": arn}, nil
}

func (p *Provider) modifyListener(ctx context.Context, providerID string, attrs map[string]any) (map[string]any, error) {
	port := int32Attr(attrs, "port", 443)

	input := &elbv2.ModifyListenerInput{
		ListenerArn:    &providerID,
		Port:           &port,
		Protocol:       types.ProtocolEnum(strAttr(attrs, "protocol")),
		DefaultActions: listenerActions(attrs),
	}
	if certArn := strAttr(attrs, "certificateArn"); certArn != "" {
		input.Certificates = []types.Certificate{{CertificateArn: &certArn}}
	}

	resp, err := p.elbClient.ModifyListener(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to modify listener %s: %w", providerID, err)
	}

	return map[string]any{"arn": *resp.Listeners[0].ListenerArn}, nil
}

func (p *Provider) deleteListener(ctx context.Context, providerID string) error {
	_, err := p.elbClient.DeleteListener(ctx, &elbv2.DeleteListenerInput{
		ListenerArn: &providerID,
	})
	if err != nil && !isNotFound(err, "ListenerNotFound") {
		return fmt.Errorf("failed to delete listener %s: %w", providerID, err)
	}
	return nil
}
