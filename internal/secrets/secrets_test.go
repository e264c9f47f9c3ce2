package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type fakeAWSClient struct {
	out *secretsmanager.GetSecretValueOutput
	err error
}

func (c *fakeAWSClient) GetSecretValue(_ context.Context, _ *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.out, nil
}

func TestParseRef(t *testing.T) {
	t.Parallel()

	cases := []struct {
		ref        string
		wantScheme string
		wantKey    string
		wantErr    bool
	}{
		{ref: "QUEST_ORACLE_KEY", wantScheme: SchemeEnv, wantKey: "QUEST_ORACLE_KEY"},
		{ref: "env:QUEST_ORACLE_KEY", wantScheme: SchemeEnv, wantKey: "QUEST_ORACLE_KEY"},
		{ref: " AWS: quest/oracle-key ", wantScheme: SchemeAWS, wantKey: "quest/oracle-key"},
		{ref: "aws:arn:aws:secretsmanager:us-east-1:123:secret:oracle", wantScheme: SchemeAWS, wantKey: "arn:aws:secretsmanager:us-east-1:123:secret:oracle"},
		{ref: "", wantErr: true},
		{ref: "vault:x", wantErr: true},
		{ref: "aws:", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.ref, func(t *testing.T) {
			t.Parallel()
			scheme, key, err := ParseRef(tc.ref)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRef: %v", err)
			}
			if scheme != tc.wantScheme || key != tc.wantKey {
				t.Fatalf("got (%q, %q) want (%q, %q)", scheme, key, tc.wantScheme, tc.wantKey)
			}
		})
	}
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("QUEST_SECRET_TEST_ENV", "  0xabc  ")

	got, err := Resolve(context.Background(), "env:QUEST_SECRET_TEST_ENV")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "0xabc" {
		t.Fatalf("value mismatch: got %q", got)
	}
	if _, err := Resolve(context.Background(), "QUEST_SECRET_MISSING_XYZ"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAWSProvider(t *testing.T) {
	t.Parallel()

	p, err := NewAWSWithClient(&fakeAWSClient{
		out: &secretsmanager.GetSecretValueOutput{SecretString: strPtr(" secret ")},
	})
	if err != nil {
		t.Fatalf("NewAWSWithClient: %v", err)
	}
	got, err := p.Get(context.Background(), "quest/oracle-key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "secret" {
		t.Fatalf("secret mismatch: got %q", got)
	}

	empty, _ := NewAWSWithClient(&fakeAWSClient{out: &secretsmanager.GetSecretValueOutput{}})
	if _, err := empty.Get(context.Background(), "quest/empty"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	failing, _ := NewAWSWithClient(&fakeAWSClient{err: errors.New("throttled")})
	if _, err := failing.Get(context.Background(), "quest/oracle-key"); err == nil {
		t.Fatalf("expected error")
	}

	if _, err := NewAWSWithClient(nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func strPtr(v string) *string { return &v }
