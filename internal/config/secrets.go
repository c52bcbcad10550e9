package config

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
)

type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// ResolveCredentials fills whichever cookie is empty from the JSON secret
// named by SecretID. Cookies already set in the environment win. On error
// the returned Config is unchanged so Validate reports what is missing.
func ResolveCredentials(ctx context.Context, sm SecretsAPI, cfg Config) (Config, error) {
	if cfg.SecretID == "" || cfg.Credentials().Complete() {
		return cfg, nil
	}
	if sm == nil {
		return cfg, crerr.New("secrets manager client is not configured")
	}

	out, err := sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(cfg.SecretID),
	})
	if err != nil {
		return cfg, crerr.Wrapf(err, "get secret %s", cfg.SecretID)
	}

	var data map[string]any
	if err := sonic.UnmarshalString(aws.ToString(out.SecretString), &data); err != nil {
		return cfg, crerr.Wrapf(err, "decode secret %s", cfg.SecretID)
	}

	if cfg.EspnS2 == "" {
		cfg.EspnS2 = secretField(data, "espn_s2", "ESPN_S2")
	}
	if cfg.SWID == "" {
		cfg.SWID = secretField(data, "swid", "SWID")
	}
	return cfg, nil
}

func secretField(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := data[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
