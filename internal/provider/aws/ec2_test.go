package aws

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	smithy "github.com/aws/smithy-go"

	"github.com/carina-iac/carina/internal/provider"
	"github.com/carina-iac/carina/internal/value"
	"github.com/stretchr/testify/assert"
)

func TestTagValueFindsMatchingKey(t *testing.T) {
	tags := []types.Tag{
		{Key: strPtr("Owner"), Value: strPtr("platform")},
		{Key: strPtr("Name"), Value: strPtr("main-vpc")},
	}
	assert.Equal(t, "main-vpc", tagValue(tags, "Name"))
	assert.Equal(t, "", tagValue(tags, "Missing"))
}

func TestNameTagOmittedWithoutName(t *testing.T) {
	specs := nameTag(types.ResourceTypeVpc, map[string]value.Value{"cidr_block": value.String("10.0.0.0/16")})
	assert.Nil(t, specs)
}

func TestNameTagIncludesNameValue(t *testing.T) {
	specs := nameTag(types.ResourceTypeVpc, map[string]value.Value{"name": value.String("main")})
	require := assert.New(t)
	require.Len(specs, 1)
	require.Equal(types.ResourceTypeVpc, specs[0].ResourceType)
	require.Equal("main", *specs[0].Tags[0].Value)
}

func TestCloneAttrsIsIndependentCopy(t *testing.T) {
	original := map[string]value.Value{"name": value.String("main")}
	clone := cloneAttrs(original)
	clone["name"] = value.String("changed")
	assert.Equal(t, "main", original["name"].AsString())
}

type fakeAPIError struct{ code string }

func (e fakeAPIError) Error() string   { return e.code }
func (e fakeAPIError) ErrorCode() string { return e.code }
func (e fakeAPIError) ErrorMessage() string { return e.code }
func (e fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

func TestWrapNotFoundMapsInvalidVpcID(t *testing.T) {
	err := wrapNotFound(fakeAPIError{code: "InvalidVpcID.NotFound"})
	assert.True(t, errors.Is(err, provider.ErrNotFound))
}

func TestWrapNotFoundPassesThroughOtherErrors(t *testing.T) {
	original := errors.New("throttled")
	err := wrapNotFound(original)
	assert.Equal(t, original, err)
}

func strPtr(s string) *string { return &s }
