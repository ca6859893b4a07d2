// Package aws implements the provider adapter for AWS, covering the
// network / compute / load-balancing / DNS / certificate resource types
// the engine reconciles.
package aws

import (
	"context"
	"fmt"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/route53"

	"github.com/stackform-io/stackform/pkg/provider"
)

// Resource types served by this adapter.
const (
	TypeVpc            = "aws:EC2.Vpc"
	TypeCluster        = "aws:ECS.Cluster"
	TypeTaskDefinition = "aws:ECS.TaskDefinition"
	TypeService        = "aws:ECS.Service"
	TypeLoadBalancer   = "aws:ELB.LoadBalancer"
	TypeTargetGroup    = "aws:ELB.TargetGroup"
	TypeListener       = "aws:ELB.Listener"
	TypeCertificate    = "aws:ACM.Certificate"
	TypeZone           = "aws:Route53.Zone"
	TypeRecord         = "aws:Route53.Record"
)

type Provider struct {
	acmClient *acm.Client
	ec2Client *ec2.Client
	ecsClient *ecs.Client
	elbClient *elbv2.Client
	r53Client *route53.Client
}

// New initializes the adapter from the default AWS credential chain.
func New() (*Provider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return &Provider{
		acmClient: acm.NewFromConfig(cfg),
		ec2Client: ec2.NewFromConfig(cfg),
		ecsClient: ecs.NewFromConfig(cfg),
		elbClient: elbv2.NewFromConfig(cfg),
		r53Client: route53.NewFromConfig(cfg),
	}, nil
}

// Schema is the per-type policy table: which attributes force a replace,
// and which types finish creation asynchronously.
func (p *Provider) Schema(typ string) provider.Schema {
	switch typ {
	case TypeVpc:
		// The address range cannot change on a live VPC.
		return provider.Schema{Immutable: []string{"cidrBlock"}}
	case TypeCluster:
		return provider.Schema{Immutable: []string{"name"}}
	case TypeService:
		return provider.Schema{
			Immutable: []string{"name", "cluster"},
			Readiness: &provider.Readiness{PollInterval: 10 * time.Second, Timeout: 15 * time.Minute},
		}
	case TypeLoadBalancer:
		return provider.Schema{
			Immutable: []string{"name", "scheme", "subnets"},
			Readiness: &provider.Readiness{PollInterval: 10 * time.Second, Timeout: 10 * time.Minute},
		}
	case TypeTargetGroup:
		return provider.Schema{Immutable: []string{"name", "port", "protocol", "vpcId"}}
	case TypeCertificate:
		// Issuance waits on external domain validation.
		return provider.Schema{
			Immutable: []string{"domainName", "validationMethod"},
			Readiness: &provider.Readiness{PollInterval: 15 * time.Second, Timeout: 30 * time.Minute},
		}
	case TypeZone:
		return provider.Schema{Immutable: []string{"name"}}
	case TypeRecord:
		return provider.Schema{Immutable: []string{"zoneId", "name", "type"}}
	default:
		return provider.Schema{}
	}
}

func (p *Provider) Create(ctx context.Context, typ string, attrs map[string]any) (string, map[string]any, error) {
	switch typ {
	case TypeVpc:
		return p.createVpc(ctx, attrs)
	case TypeCluster:
		return p.createCluster(ctx, attrs)
	case TypeTaskDefinition:
		return p.registerTaskDefinition(ctx, attrs)
	case TypeService:
		return p.createService(ctx, attrs)
	case TypeLoadBalancer:
		return p.createLoadBalancer(ctx, attrs)
	case TypeTargetGroup:
		return p.createTargetGroup(ctx, attrs)
	case TypeListener:
		return p.createListener(ctx, attrs)
	case TypeCertificate:
		return p.requestCertificate(ctx, attrs)
	case TypeZone:
		return p.createZone(ctx, attrs)
	case TypeRecord:
		return p.upsertRecord(ctx, attrs)
	default:
		return "", nil, fmt.Errorf("unsupported resource type: %s", typ)
	}
}

func (p *Provider) Read(ctx context.Context, typ, providerID string) (map[string]any, bool, error) {
	switch typ {
	case TypeVpc:
		return p.readVpc(ctx, providerID)
	case TypeService:
		return p.readService(ctx, providerID)
	case TypeLoadBalancer:
		return p.readLoadBalancer(ctx, providerID)
	case TypeCertificate:
		return p.readCertificate(ctx, providerID)
	default:
		return nil, false, fmt.Errorf("read not supported for resource type: %s", typ)
	}
}

func (p *Provider) Update(ctx context.Context, typ, providerID string, attrs map[string]any) (map[string]any, error) {
	switch typ {
	case TypeVpc:
		outputs, _, err := p.readVpc(ctx, providerID)
		return outputs, err
	case TypeTaskDefinition:
		// Task definitions are revisioned: an update registers a new
		// revision under the same family.
		_, outputs, err := p.registerTaskDefinition(ctx, attrs)
		return outputs, err
	case TypeService:
		return p.updateService(ctx, providerID, attrs)
	case TypeListener:
		return p.modifyListener(ctx, providerID, attrs)
	case TypeRecord:
		_, outputs, err := p.upsertRecord(ctx, attrs)
		return outputs, err
	default:
		return nil, fmt.Errorf("update not supported for resource type: %s", typ)
	}
}

func (p *Provider) Delete(ctx context.Context, typ, providerID string) error {
	switch typ {
	case TypeVpc:
		return p.deleteVpc(ctx, providerID)
	case TypeCluster:
		return p.deleteCluster(ctx, providerID)
	case TypeTaskDefinition:
		return p.deregisterTaskDefinition(ctx, providerID)
	case TypeService:
		return p.deleteService(ctx, providerID)
	case TypeLoadBalancer:
		return p.deleteLoadBalancer(ctx, providerID)
	case TypeTargetGroup:
		return p.deleteTargetGroup(ctx, providerID)
	case TypeListener:
		return p.deleteListener(ctx, providerID)
	case TypeCertificate:
		return p.deleteCertificate(ctx, providerID)
	case TypeZone:
		return p.deleteZone(ctx, providerID)
	case TypeRecord:
		return p.deleteRecord(ctx, providerID)
	default:
		return fmt.Errorf("delete not supported for resource type: %s", typ)
	}
}

func (p *Provider) IsReady(ctx context.Context, typ string, outputs map[string]any) (bool, error) {
	switch typ {
	case TypeService:
		return p.serviceReady(ctx, outputs)
	case TypeLoadBalancer:
		return p.loadBalancerReady(ctx, outputs)
	case TypeCertificate:
		return p.certificateReady(ctx, outputs)
	default:
		return true, nil
	}
}

// Attribute accessors. Manifest attributes arrive as loosely typed YAML
// values; missing keys decay to zero values and are caught by the AWS API
// validation.

// isNotFound reports whether err carries one of the given AWS error codes.
// Deletes treat not-found as success so retried deletes stay idempotent.
func isNotFound(err error, codes ...string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, code := range codes {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}

func strAttr(attrs map[string]any, key string) string {
	if v, ok := attrs[key].(string); ok {
		return v
	}
	return ""
}

func strListAttr(attrs map[string]any, key string) []string {
	raw, ok := attrs[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, fmt.Sprintf("%v", v))
	}
	return out
}

func int32Attr(attrs map[string]any, key string, def int32) int32 {
	switch v := attrs[key].(type) {
	case int:
		return int32(v)
	case int64:
		return int32(v)
	case float64:
		return int32(v)
	default:
		return def
	}
}

func int64Attr(attrs map[string]any, key string, def int64) int64 {
	switch v := attrs[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return def
	}
}
