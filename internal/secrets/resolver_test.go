package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/stretchr/testify/require"
)

type stubSecrets struct {
	value *string
	err   error
	calls []string
}

func (s *stubSecrets) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	s.calls = append(s.calls, aws.ToString(params.SecretId))
	if s.err != nil {
		return nil, s.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: s.value}, nil
}

func TestResolveReturnsBundle(t *testing.T) {
	api := &stubSecrets{value: aws.String(`{"fusion":{"username":"loader","password":"s3cret","account_name":"wh.example.net","app_id":"oer-123"}}`)}
	creds, err := NewResolver(api).Resolve(context.Background(), "db/fx", "fusion")
	require.NoError(t, err)
	require.Equal(t, Credentials{Username: "loader", Password: "s3cret", Account: "wh.example.net", AppID: "oer-123"}, creds)
	require.Equal(t, []string{"db/fx"}, api.calls)
}

func TestResolveDoesNotCache(t *testing.T) {
	api := &stubSecrets{value: aws.String(`{"fusion":{"username":"u","password":"p","account_name":"a"}}`)}
	resolver := NewResolver(api)
	for i := 0; i < 2; i++ {
		_, err := resolver.Resolve(context.Background(), "db/fx", "fusion")
		require.NoError(t, err)
	}
	require.Len(t, api.calls, 2)
}

func TestResolveSecretNotFound(t *testing.T) {
	api := &stubSecrets{err: &types.ResourceNotFoundException{Message: aws.String("missing")}}
	_, err := NewResolver(api).Resolve(context.Background(), "db/missing", "fusion")
	require.ErrorIs(t, err, ErrSecretNotFound)
}

func TestResolveMissingSubKey(t *testing.T) {
	api := &stubSecrets{value: aws.String(`{"other":{"username":"u","password":"p","account_name":"a"}}`)}
	_, err := NewResolver(api).Resolve(context.Background(), "db/fx", "fusion")
	require.ErrorIs(t, err, ErrMalformedSecret)
}

func TestResolveMissingField(t *testing.T) {
	api := &stubSecrets{value: aws.String(`{"fusion":{"username":"u","password":"p"}}`)}
	_, err := NewResolver(api).Resolve(context.Background(), "db/fx", "fusion")
	require.ErrorIs(t, err, ErrMalformedSecret)
}

func TestResolveNotJSON(t *testing.T) {
	api := &stubSecrets{value: aws.String(`not-json`)}
	_, err := NewResolver(api).Resolve(context.Background(), "db/fx", "fusion")
	require.ErrorIs(t, err, ErrMalformedSecret)
}

func TestResolveTransportError(t *testing.T) {
	api := &stubSecrets{err: errors.New("throttled")}
	_, err := NewResolver(api).Resolve(context.Background(), "db/fx", "fusion")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrSecretNotFound)
	require.NotErrorIs(t, err, ErrMalformedSecret)
}

func TestResolveRawReturnsDocument(t *testing.T) {
	api := &stubSecrets{value: aws.String(`{"a":1,"b":{"c":true}}`)}
	doc, err := NewResolver(api).ResolveRaw(context.Background(), "cfg")
	require.NoError(t, err)
	require.Len(t, doc, 2)
	require.JSONEq(t, `{"c":true}`, string(doc["b"]))
}
