package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/acm/types"
)

func (p *Provider) requestCertificate(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	domain := strAttr(attrs, "domainName")
	method := strAttr(attrs, "validationMethod")
	if method == "" {
		method = string(types.ValidationMethodDns)
	}

	input := &acm.RequestCertificateInput{
		DomainName:       &domain,
		ValidationMethod: types.ValidationMethod(method),
	}
	if alts := strListAttr(attrs, "subjectAlternativeNames"); len(alts) > 0 {
		input.SubjectAlternativeNames = alts
	}

	resp, err := p.acmClient.RequestCertificate(ctx, input)
	if err != nil {
		return "", nil, fmt.Errorf("failed to request certificate: %w", err)
	}

	arn := *resp.CertificateArn
	outputs := map[string]any{
		"arn":        arn,
		"domainName": domain,
	}
	return arn, outputs, nil
}

func (p *Provider) readCertificate(ctx context.Context, providerID string) (map[string]any, bool, error) {
	resp, err := p.acmClient.DescribeCertificate(ctx, &acm.DescribeCertificateInput{
		CertificateArn: &providerID,
	})
	if err != nil {
		if isNotFound(err, "ResourceNotFoundException") {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to describe certificate %s: %w", providerID, err)
	}

	cert := resp.Certificate
	outputs := map[string]any{
		"arn":        *cert.CertificateArn,
		"domainName": *cert.DomainName,
		"status":     string(cert.Status),
	}

	// Surface the DNS validation records so a Route53 record can be hung
	// off them by reference.
	for _, dv := range cert.DomainValidationOptions {
		if dv.ResourceRecord != nil {
			outputs["validationRecordName"] = *dv.ResourceRecord.Name
			outputs["validationRecordType"] = string(dv.ResourceRecord.Type)
			outputs["validationRecordValue"] = *dv.ResourceRecord.Value
			break
		}
	}
	return outputs, true, nil
}

func (p *Provider) deleteCertificate(ctx context.Context, providerID string) error {
	_, err := p.acmClient.DeleteCertificate(ctx, &acm.DeleteCertificateInput{
		CertificateArn: &providerID,
	})
	if err != nil && !isNotFound(err, "ResourceNotFoundException") {
		return fmt.Errorf("failed to delete certificate %s: %w", providerID, err)
	}
	return nil
}

func (p *Provider) certificateReady(ctx context.Context, outputs map[string]any) (bool, error) {
	arn := strAttr(outputs, "arn")

	resp, err := p.acmClient.DescribeCertificate(ctx, &acm.DescribeCertificateInput{
		CertificateArn: &arn,
	})
	if err != nil {
		return false, fmt.Errorf("failed to describe certificate %s: %w", arn, err)
	}

	switch resp.Certificate.Status {
	case types.CertificateStatusIssued:
		return true, nil
	case types.CertificateStatusFailed, types.CertificateStatusValidationTimedOut:
		return false, fmt.Errorf("certificate %s validation failed with status %s", arn, resp.Certificate.Status)
	default:
		return false, nil
	}
}
