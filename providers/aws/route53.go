package aws

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
)

func (p *Provider) createZone(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	name := strAttr(attrs, "name")
	callerRef := fmt.Sprintf("stackform-%d", time.Now().UnixNano())

	resp, err := p.r53Client.CreateHostedZone(ctx, &route53.CreateHostedZoneInput{
		Name:            &name,
		CallerReference: &callerRef,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to create hosted zone: %w", err)
	}

	zoneID := strings.TrimPrefix(*resp.HostedZone.Id, "/hostedzone/")
	outputs := map[string]any{
		"zoneId": zoneID,
		"name":   *resp.HostedZone.Name,
	}
	if resp.DelegationSet != nil {
		ns := make([]any, 0, len(resp.DelegationSet.NameServers))
		for _, s := range resp.DelegationSet.NameServers {
			ns = append(ns, s)
		}
		outputs["nameServers"] = ns
	}
	return zoneID, outputs, nil
}

func (p *Provider) deleteZone(ctx context.Context, providerID string) error {
	_, err := p.r53Client.DeleteHostedZone(ctx, &route53.DeleteHostedZoneInput{
		Id: &providerID,
	})
	if err != nil && !isNotFound(err, "NoSuchHostedZone") {
		return fmt.Errorf("failed to delete hosted zone %s: %w", providerID, err)
	}
	return nil
}

// Records are addressed as "<zoneId>:<name>:<type>". Route53 has no record
// identifier of its own, the triple is the key.
func recordID(zoneID, name, typ string) string {
	return fmt.Sprintf("%s:%s:%s", zoneID, name, typ)
}

func recordSetFromAttrs(attrs map[string]any) *types.ResourceRecordSet {
	name := strAttr(attrs, "name")
	rs := &types.ResourceRecordSet{
		Name: &name,
		Type: types.RRType(strAttr(attrs, "type")),
	}

	if alias, ok := attrs["alias"].(map[string]any); ok {
		dnsName := strAttr(alias, "dnsName")
		hostedZoneID := strAttr(alias, "hostedZoneId")
		evaluate, _ := alias["evaluateTargetHealth"].(bool)
		rs.AliasTarget = &types.AliasTarget{
			DNSName:              &dnsName,
			HostedZoneId:         &hostedZoneID,
			EvaluateTargetHealth: evaluate,
		}
		return rs
	}

	ttl := int64Attr(attrs, "ttl", 300)
	rs.TTL = &ttl
	for _, v := range strListAttr(attrs, "records") {
		value := v
		rs.ResourceRecords = append(rs.ResourceRecords, types.ResourceRecord{Value: &value})
	}
	return rs
}

func (p *Provider) upsertRecord(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	zoneID := strAttr(attrs, "zoneId")
	rs := recordSetFromAttrs(attrs)

	_, err := p.r53Client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: &zoneID,
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{{
				Action:            types.ChangeActionUpsert,
				ResourceRecordSet: rs,
			}},
		},
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to upsert record set: %w", err)
	}

	id := recordID(zoneID, *rs.Name, string(rs.Type))
	outputs := map[string]any{
		"name":   *rs.Name,
		"type":   string(rs.Type),
		"zoneId": zoneID,
	}
	return id, outputs, nil
}

func (p *Provider) deleteRecord(ctx context.Context, providerID string) error {
	parts := strings.SplitN(providerID, ":", 3)
	if len(parts) != 3 {
		return fmt.Errorf("malformed record id %q", providerID)
	}
	zoneID, name, typ := parts[0], parts[1], parts[2]

	// Route53 requires the full record set to delete, so look it up first.
	rrType := types.RRType(typ)
	resp, err := p.r53Client.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    &zoneID,
		StartRecordName: &name,
		StartRecordType: rrType,
	})
	if err != nil {
		if isNotFound(err, "NoSuchHostedZone") {
			return nil
		}
		return fmt.Errorf("failed to list record sets in zone %s: %w", zoneID, err)
	}

	var found *types.ResourceRecordSet
	for i, rs := range resp.ResourceRecordSets {
		if strings.TrimSuffix(*rs.Name, ".") == strings.TrimSuffix(name, ".") && rs.Type == rrType {
			found = &resp.ResourceRecordSets[i]
			break
		}
	}
	if found == nil {
		return nil
	}

	_, err = p.r53Client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: &zoneID,
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{{
				Action:            types.ChangeActionDelete,
				ResourceRecordSet: found,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete record set %s: %w", providerID, err)
	}
	return nil
}
