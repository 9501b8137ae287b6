// Package secrets resolves warehouse credentials from AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrSecretNotFound indicates the secret identifier does not exist in the store.
	ErrSecretNotFound = errors.New("secrets: secret not found")
	// ErrMalformedSecret indicates the secret payload lacks the expected structure.
	ErrMalformedSecret = errors.New("secrets: malformed secret")
)

// Credentials is the bundle stored under a secret sub-key.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Account  string `json:"account_name" validate:"required"`
	AppID    string `json:"app_id,omitempty"`
}

// LogValue keeps the password out of log output.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", c.Username),
		slog.String("account", c.Account),
		slog.Bool("app_id_set", c.AppID != ""),
	)
}

// SecretsAPI is the subset of the Secrets Manager client used by the resolver.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver reads credential bundles. It never caches; every call hits the store once.
type Resolver struct {
	api      SecretsAPI
	validate *validator.Validate
}

// NewResolver constructs a Resolver backed by the given API client.
func NewResolver(api SecretsAPI) *Resolver {
	return &Resolver{api: api, validate: validator.New()}
}

// Resolve fetches secretID and decodes the credential bundle stored under subKey.
func (r *Resolver) Resolve(ctx context.Context, secretID, subKey string) (Credentials, error) {
	doc, err := r.ResolveRaw(ctx, secretID)
	if err != nil {
		return Credentials{}, err
	}
	raw, ok := doc[subKey]
	if !ok {
		return Credentials{}, fmt.Errorf("%w: %s has no key %q", ErrMalformedSecret, secretID, subKey)
	}
	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: %s.%s: %w", ErrMalformedSecret, secretID, subKey, err)
	}
	if err := r.validate.Struct(creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: %s.%s: %w", ErrMalformedSecret, secretID, subKey, err)
	}
	return creds, nil
}

// ResolveRaw returns the top-level JSON object stored in secretID.
func (r *Resolver) ResolveRaw(ctx context.Context, secretID string) (map[string]json.RawMessage, error) {
	if r == nil || r.api == nil {
		return nil, errors.New("secrets: resolver not configured")
	}
	out, err := r.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(secretID)})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, secretID)
		}
		return nil, fmt.Errorf("secrets: get secret value %s: %w", secretID, err)
	}
	if out == nil || out.SecretString == nil {
		return nil, fmt.Errorf("%w: %s has no secret string", ErrMalformedSecret, secretID)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(*out.SecretString), &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedSecret, secretID, err)
	}
	return doc, nil
}
