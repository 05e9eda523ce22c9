package aws

import (
	"context"
	"errors"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	smithy "github.com/aws/smithy-go"

	"github.com/carina-iac/carina/internal/provider"
	"github.com/carina-iac/carina/internal/value"
)

// EC2Provider implements provider.Provider for the "aws.vpc",
// "aws.subnet" and "aws.security_group" resource types against a single
// EC2 client, dispatching by qualifiedType.
type EC2Provider struct {
	Client *ec2.Client
}

func NewEC2Provider(c *Client) *EC2Provider {
	return &EC2Provider{Client: c.EC2}
}

// Register wires this provider into reg for every qualified type it
// handles.
func (p *EC2Provider) Register(reg *provider.Registry) {
	reg.Register("aws.vpc", p)
	reg.Register("aws.subnet", p)
	reg.Register("aws.security_group", p)
}

func (p *EC2Provider) Create(ctx context.Context, qualifiedType string, attrs map[string]value.Value) (provider.Created, error) {
	switch qualifiedType {
	case "aws.vpc":
		return p.createVPC(ctx, attrs)
	case "aws.subnet":
		return p.createSubnet(ctx, attrs)
	case "aws.security_group":
		return p.createSecurityGroup(ctx, attrs)
	default:
		return provider.Created{}, &unsupportedType{qualifiedType}
	}
}

func (p *EC2Provider) Read(ctx context.Context, qualifiedType string, providerID string) (provider.Observed, error) {
	switch qualifiedType {
	case "aws.vpc":
		return p.readVPC(ctx, providerID)
	case "aws.subnet":
		return p.readSubnet(ctx, providerID)
	case "aws.security_group":
		return p.readSecurityGroup(ctx, providerID)
	default:
		return provider.Observed{}, &unsupportedType{qualifiedType}
	}
}

func (p *EC2Provider) Update(ctx context.Context, qualifiedType string, providerID string, before, after map[string]value.Value, changedFields []string) (provider.Observed, error) {
	switch qualifiedType {
	case "aws.vpc":
		return p.updateVPC(ctx, providerID, after, changedFields)
	case "aws.subnet", "aws.security_group":
		return p.retagName(ctx, providerID, after)
	default:
		return provider.Observed{}, &unsupportedType{qualifiedType}
	}
}

func (p *EC2Provider) Delete(ctx context.Context, qualifiedType string, providerID string) error {
	switch qualifiedType {
	case "aws.vpc":
		_, err := p.Client.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: awssdk.String(providerID)})
		return wrapNotFound(err)
	case "aws.subnet":
		_, err := p.Client.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: awssdk.String(providerID)})
		return wrapNotFound(err)
	case "aws.security_group":
		_, err := p.Client.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: awssdk.String(providerID)})
		return wrapNotFound(err)
	default:
		return &unsupportedType{qualifiedType}
	}
}

func (p *EC2Provider) createVPC(ctx context.Context, attrs map[string]value.Value) (provider.Created, error) {
	out, err := p.Client.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock:         awssdk.String(attrs["cidr_block"].AsString()),
		TagSpecifications: nameTag(types.ResourceTypeVpc, attrs),
	})
	if err != nil {
		return provider.Created{}, fmt.Errorf("create vpc: %w", err)
	}
	id := awssdk.ToString(out.Vpc.VpcId)

	if v, ok := attrs["enable_dns_hostnames"]; ok {
		if _, err := p.Client.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
			VpcId:              awssdk.String(id),
			EnableDnsHostnames: &types.AttributeBooleanValue{Value: awssdk.Bool(v.AsBool())},
		}); err != nil {
			return provider.Created{}, fmt.Errorf("set enable_dns_hostnames on %s: %w", id, err)
		}
	}

	observed := cloneAttrs(attrs)
	observed["id"] = value.String(id)
	return provider.Created{ProviderID: id, Observed: observed}, nil
}

func (p *EC2Provider) readVPC(ctx context.Context, id string) (provider.Observed, error) {
	out, err := p.Client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{id}})
	if err != nil {
		return provider.Observed{}, wrapNotFound(err)
	}
	if len(out.Vpcs) == 0 {
		return provider.Observed{}, provider.ErrNotFound
	}
	v := out.Vpcs[0]
	return provider.Observed{Values: map[string]value.Value{
		"id":         value.String(awssdk.ToString(v.VpcId)),
		"cidr_block": value.String(awssdk.ToString(v.CidrBlock)),
		"name":       value.String(tagValue(v.Tags, "Name")),
	}}, nil
}

func (p *EC2Provider) updateVPC(ctx context.Context, id string, after map[string]value.Value, changedFields []string) (provider.Observed, error) {
	for _, field := range changedFields {
		switch field {
		case "enable_dns_hostnames":
			if _, err := p.Client.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
				VpcId:              awssdk.String(id),
				EnableDnsHostnames: &types.AttributeBooleanValue{Value: awssdk.Bool(after["enable_dns_hostnames"].AsBool())},
			}); err != nil {
				return provider.Observed{}, fmt.Errorf("update enable_dns_hostnames on %s: %w", id, err)
			}
		case "name":
			if err := p.retag(ctx, id, after["name"].AsString()); err != nil {
				return provider.Observed{}, err
			}
		}
	}
	return p.readVPC(ctx, id)
}

func (p *EC2Provider) createSubnet(ctx context.Context, attrs map[string]value.Value) (provider.Created, error) {
	input := &ec2.CreateSubnetInput{
		VpcId:             awssdk.String(attrs["vpc_id"].AsString()),
		CidrBlock:         awssdk.String(attrs["cidr_block"].AsString()),
		TagSpecifications: nameTag(types.ResourceTypeSubnet, attrs),
	}
	if az, ok := attrs["availability_zone"]; ok {
		input.AvailabilityZone = awssdk.String(az.AsString())
	}

	out, err := p.Client.CreateSubnet(ctx, input)
	if err != nil {
		return provider.Created{}, fmt.Errorf("create subnet: %w", err)
	}
	id := awssdk.ToString(out.Subnet.SubnetId)

	observed := cloneAttrs(attrs)
	observed["id"] = value.String(id)
	return provider.Created{ProviderID: id, Observed: observed}, nil
}

func (p *EC2Provider) readSubnet(ctx context.Context, id string) (provider.Observed, error) {
	out, err := p.Client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{SubnetIds: []string{id}})
	if err != nil {
		return provider.Observed{}, wrapNotFound(err)
	}
	if len(out.Subnets) == 0 {
		return provider.Observed{}, provider.ErrNotFound
	}
	s := out.Subnets[0]
	return provider.Observed{Values: map[string]value.Value{
		"id":                value.String(awssdk.ToString(s.SubnetId)),
		"vpc_id":            value.String(awssdk.ToString(s.VpcId)),
		"cidr_block":        value.String(awssdk.ToString(s.CidrBlock)),
		"availability_zone": value.String(awssdk.ToString(s.AvailabilityZone)),
		"name":              value.String(tagValue(s.Tags, "Name")),
	}}, nil
}

func (p *EC2Provider) createSecurityGroup(ctx context.Context, attrs map[string]value.Value) (provider.Created, error) {
	out, err := p.Client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:         awssdk.String(attrs["name"].AsString()),
		Description:       awssdk.String(attrs["description"].AsString()),
		VpcId:             awssdk.String(attrs["vpc_id"].AsString()),
		TagSpecifications: nameTag(types.ResourceTypeSecurityGroup, attrs),
	})
	if err != nil {
		return provider.Created{}, fmt.Errorf("create security group: %w", err)
	}
	id := awssdk.ToString(out.GroupId)

	observed := cloneAttrs(attrs)
	observed["id"] = value.String(id)
	return provider.Created{ProviderID: id, Observed: observed}, nil
}

func (p *EC2Provider) readSecurityGroup(ctx context.Context, id string) (provider.Observed, error) {
	out, err := p.Client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{GroupIds: []string{id}})
	if err != nil {
		return provider.Observed{}, wrapNotFound(err)
	}
	if len(out.SecurityGroups) == 0 {
		return provider.Observed{}, provider.ErrNotFound
	}
	sg := out.SecurityGroups[0]
	return provider.Observed{Values: map[string]value.Value{
		"id":          value.String(awssdk.ToString(sg.GroupId)),
		"vpc_id":      value.String(awssdk.ToString(sg.VpcId)),
		"name":        value.String(awssdk.ToString(sg.GroupName)),
		"description": value.String(awssdk.ToString(sg.Description)),
	}}, nil
}

// retagName is the shared Update path for resource types whose only
// mutable attribute is their display name, tracked via the Name tag.
func (p *EC2Provider) retagName(ctx context.Context, id string, after map[string]value.Value) (provider.Observed, error) {
	if name, ok := after["name"]; ok {
		if err := p.retag(ctx, id, name.AsString()); err != nil {
			return provider.Observed{}, err
		}
	}
	return provider.Observed{Values: after}, nil
}

func (p *EC2Provider) retag(ctx context.Context, id, name string) error {
	_, err := p.Client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{id},
		Tags:      []types.Tag{{Key: awssdk.String("Name"), Value: awssdk.String(name)}},
	})
	if err != nil {
		return fmt.Errorf("retag %s: %w", id, err)
	}
	return nil
}

func nameTag(rt types.ResourceType, attrs map[string]value.Value) []types.TagSpecification {
	name, ok := attrs["name"]
	if !ok {
		return nil
	}
	return []types.TagSpecification{{
		ResourceType: rt,
		Tags:         []types.Tag{{Key: awssdk.String("Name"), Value: awssdk.String(name.AsString())}},
	}}
}

func tagValue(tags []types.Tag, key string) string {
	for _, t := range tags {
		if awssdk.ToString(t.Key) == key {
			return awssdk.ToString(t.Value)
		}
	}
	return ""
}

func cloneAttrs(attrs map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// wrapNotFound maps EC2's "NotFound"-flavored API error codes onto
// provider.ErrNotFound so the planner's drift-read demotion works the
// same way against a real cloud as it does against
// internal/provider/memory.
func wrapNotFound(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InvalidVpcID.NotFound", "InvalidSubnetID.NotFound", "InvalidGroup.NotFound":
			return provider.ErrNotFound
		}
	}
	return err
}

type unsupportedType struct {
	qualifiedType string
}

func (e *unsupportedType) Error() string {
	return fmt.Sprintf("aws provider: unsupported resource type %q", e.qualifiedType)
}
