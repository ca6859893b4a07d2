package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

func (p *Provider) createVpc(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	cidr := strAttr(attrs, "cidrBlock")

	resp, err := p.ec2Client.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock: &cidr,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to create vpc: %w", err)
	}
	vpcID := *resp.Vpc.VpcId

	if name := strAttr(attrs, "name"); name != "" {
		key := "Name"
		_, _ = p.ec2Client.CreateTags(ctx, &ec2.CreateTagsInput{
			Resources: []string{vpcID},
			Tags:      []types.Tag{{Key: &key, Value: &name}},
		})
	}

	if dns, ok := attrs["enableDnsHostnames"].(bool); ok && dns {
		_, _ = p.ec2Client.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
			VpcId:              &vpcID,
			EnableDnsHostnames: &types.AttributeBooleanValue{Value: &dns},
		})
	}

	outputs := map[string]any{
		"vpcId":     vpcID,
		"cidrBlock": cidr,
	}
	return vpcID, outputs, nil
}

func (p *Provider) readVpc(ctx context.Context, providerID string) (map[string]any, bool, error) {
	resp, err := p.ec2Client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		VpcIds: []string{providerID},
	})
	if err != nil {
		if isNotFound(err, "InvalidVpcID.NotFound") {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to describe vpc %s: %w", providerID, err)
	}
	if len(resp.Vpcs) == 0 {
		return nil, false, nil
	}

	vpc := resp.Vpcs[0]
	outputs := map[string]any{
		"vpcId":     *vpc.VpcId,
		"cidrBlock": *vpc.CidrBlock,
	}
	return outputs, true, nil
}

func (p *Provider) deleteVpc(ctx context.Context, providerID string) error {
	_, err := p.ec2Client.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: &providerID})
	if err != nil && !isNotFound(err, "InvalidVpcID.NotFound") {
		return fmt.Errorf("failed to delete vpc %s: %w", providerID, err)
	}
	return nil
}
