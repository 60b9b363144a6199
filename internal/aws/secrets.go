package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// ErrSecretFieldMissing is returned when the secret JSON lacks the requested field.
var ErrSecretFieldMissing = errors.New("secret field missing")

// SecretField reads a JSON secret and returns one string field of it.
// The cache credential is stored as {"redis": "redis://..."}.
func SecretField(ctx context.Context, client SecretsAPI, secretID, field string) (string, error) {
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &secretID,
	})
	if err != nil {
		return "", fmt.Errorf("get secret value: %w", err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s: %w", secretID, ErrSecretFieldMissing)
	}

	var fields map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &fields); err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}
	v, ok := fields[field]
	if !ok || v == "" {
		return "", fmt.Errorf("secret %s field %q: %w", secretID, field, ErrSecretFieldMissing)
	}
	return v, nil
}
