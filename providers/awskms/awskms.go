// Package awskms provides an AWS Key Management Service (KMS) implementation
// of dbcrypt.KeyManagementService.
//
// KMS keys act as key encryption keys: they wrap and unwrap the data keys kept
// by the keyring package and never leave AWS. When CreateKey is called with an
// alias name such as "alias/myapp-kek" the alias is created, or moved to the
// new key on rotation, so GetKeyID always resolves to the newest key.
package awskms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/hengadev/dbcrypt"
)

const aliasPrefix = "alias/"

// kmsClient interface for AWS KMS operations (allows mocking)
type kmsClient interface {
	DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
	CreateKey(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error)
	CreateAlias(ctx context.Context, params *kms.CreateAliasInput, optFns ...func(*kms.Options)) (*kms.CreateAliasOutput, error)
	UpdateAlias(ctx context.Context, params *kms.UpdateAliasInput, optFns ...func(*kms.Options)) (*kms.UpdateAliasOutput, error)
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KMSService implements dbcrypt.KeyManagementService using AWS KMS.
type KMSService struct {
	client            kmsClient
	region            string
	encryptionContext map[string]string
	logger            *zap.Logger
}

var _ dbcrypt.KeyManagementService = (*KMSService)(nil)

// Config holds configuration for AWS KMS service.
type Config struct {
	// Region is the AWS region (e.g., "us-east-1")
	// If empty, uses AWS_REGION environment variable or AWS config file
	Region string

	// AWSConfig is an optional pre-configured AWS config
	// If provided, Region is ignored
	AWSConfig *aws.Config

	// EncryptionContext is bound to every wrapped data key. The same context
	// is required to unwrap it, so it must not change once keys are stored.
	EncryptionContext map[string]string

	Logger *zap.Logger
}

// New creates a new AWS KMS service instance.
//
// Usage:
//
//	// Using default AWS configuration
//	kmsService, err := awskms.New(ctx, awskms.Config{})
//
//	// With specific region
//	kmsService, err := awskms.New(ctx, awskms.Config{Region: "us-east-1"})
//
//	// With custom AWS config
//	awsCfg, _ := config.LoadDefaultConfig(ctx)
//	kmsService, err := awskms.New(ctx, awskms.Config{AWSConfig: &awsCfg})
func New(ctx context.Context, cfg Config) (*KMSService, error) {
	var awsConfig aws.Config
	if cfg.AWSConfig != nil {
		awsConfig = *cfg.AWSConfig
	} else {
		opts := []func(*config.LoadOptions) error{}
		if cfg.Region != "" {
			opts = append(opts, config.WithRegion(cfg.Region))
		}
		var err error
		awsConfig, err = config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load AWS config: %w", dbcrypt.ErrKMSUnavailable, err)
		}
	}
	return newWithClient(kms.NewFromConfig(awsConfig), awsConfig.Region, cfg), nil
}

func newWithClient(client kmsClient, region string, cfg Config) *KMSService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KMSService{
		client:            client,
		region:            region,
		encryptionContext: cfg.EncryptionContext,
		logger:            logger,
	}
}

// GetKeyID returns the KMS key ID an alias points to. The "alias/" prefix is
// added when missing.
func (k *KMSService) GetKeyID(ctx context.Context, alias string) (string, error) {
	if alias == "" {
		return "", fmt.Errorf("%w: alias cannot be empty", dbcrypt.ErrInvalidConfiguration)
	}
	aliasName := normalizeAlias(alias)

	result, err := k.client.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(aliasName)})
	if err != nil {
		return "", classify(fmt.Sprintf("describe KMS key %s", aliasName), err)
	}
	if result.KeyMetadata == nil || result.KeyMetadata.KeyId == nil {
		return "", fmt.Errorf("%w: no key metadata returned for alias %s", dbcrypt.ErrKMSUnavailable, aliasName)
	}
	return *result.KeyMetadata.KeyId, nil
}

// CreateKey creates a symmetric encryption key with the given description.
// When description is an alias name ("alias/..."), the alias is pointed at
// the new key.
func (k *KMSService) CreateKey(ctx context.Context, description string) (string, error) {
	result, err := k.client.CreateKey(ctx, &kms.CreateKeyInput{
		Description: aws.String(description),
		KeyUsage:    types.KeyUsageTypeEncryptDecrypt,
		KeySpec:     types.KeySpecSymmetricDefault,
		MultiRegion: aws.Bool(false),
		Tags: []types.Tag{
			{TagKey: aws.String("created-by"), TagValue: aws.String("dbcrypt")},
		},
	})
	if err != nil {
		return "", classify("create KMS key", err)
	}
	if result.KeyMetadata == nil || result.KeyMetadata.KeyId == nil {
		return "", fmt.Errorf("%w: no key metadata returned after creation", dbcrypt.ErrKMSUnavailable)
	}
	keyID := *result.KeyMetadata.KeyId

	if strings.HasPrefix(description, aliasPrefix) {
		if err := k.pointAlias(ctx, description, keyID); err != nil {
			return "", err
		}
	}
	k.logger.Info("KMS key created", zap.String("key_id", keyID), zap.String("description", description))
	return keyID, nil
}

func (k *KMSService) pointAlias(ctx context.Context, alias, keyID string) error {
	_, err := k.client.CreateAlias(ctx, &kms.CreateAliasInput{
		AliasName:   aws.String(alias),
		TargetKeyId: aws.String(keyID),
	})
	var exists *types.AlreadyExistsException
	if errors.As(err, &exists) {
		_, err = k.client.UpdateAlias(ctx, &kms.UpdateAliasInput{
			AliasName:   aws.String(alias),
			TargetKeyId: aws.String(keyID),
		})
	}
	if err != nil {
		return classify(fmt.Sprintf("point alias %s at key %s", alias, keyID), err)
	}
	return nil
}

// EncryptDEK wraps a data key with the KMS key identified by keyID, which may
// be a key ID, key ARN, alias name or alias ARN. The raw ciphertext blob is
// returned.
func (k *KMSService) EncryptDEK(ctx context.Context, keyID string, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("%w: plaintext cannot be empty", dbcrypt.ErrEncryptionFailed)
	}
	result, err := k.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(keyID),
		Plaintext:         plaintext,
		EncryptionContext: k.encryptionContext,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dbcrypt.ErrEncryptionFailed, classify(fmt.Sprintf("encrypt DEK with KMS key %s", keyID), err))
	}
	if len(result.CiphertextBlob) == 0 {
		return nil, fmt.Errorf("%w: no ciphertext returned from KMS", dbcrypt.ErrEncryptionFailed)
	}
	return result.CiphertextBlob, nil
}

// DecryptDEK unwraps a data key produced by EncryptDEK. keyID may be empty:
// the ciphertext blob identifies its key.
func (k *KMSService) DecryptDEK(ctx context.Context, keyID string, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: ciphertext cannot be empty", dbcrypt.ErrDecryptionFailed)
	}
	input := &kms.DecryptInput{
		CiphertextBlob:    ciphertext,
		EncryptionContext: k.encryptionContext,
	}
	if keyID != "" {
		input.KeyId = aws.String(keyID)
	}
	result, err := k.client.Decrypt(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dbcrypt.ErrDecryptionFailed, classify("decrypt DEK", err))
	}
	if len(result.Plaintext) == 0 {
		return nil, fmt.Errorf("%w: no plaintext returned from KMS", dbcrypt.ErrDecryptionFailed)
	}
	return result.Plaintext, nil
}

// Region returns the AWS region this KMS service is configured for.
func (k *KMSService) Region() string {
	return k.region
}

func normalizeAlias(alias string) string {
	if strings.HasPrefix(alias, aliasPrefix) || strings.HasPrefix(alias, "arn:") {
		return alias
	}
	return aliasPrefix + alias
}

// classify maps AWS errors to dbcrypt sentinels.
func classify(op string, err error) error {
	var (
		notFound     *types.NotFoundException
		disabled     *types.DisabledException
		invalidState *types.KMSInvalidStateException
		invalidCT    *types.InvalidCiphertextException
		incorrectKey *types.IncorrectKeyException
	)
	switch {
	case errors.As(err, &notFound):
		return fmt.Errorf("%w: %s: %w", dbcrypt.ErrNotFound, op, err)
	case errors.As(err, &disabled), errors.As(err, &invalidState):
		return fmt.Errorf("%w: %s: %w", dbcrypt.ErrInvalidConfiguration, op, err)
	case errors.As(err, &invalidCT), errors.As(err, &incorrectKey):
		return fmt.Errorf("%w: %s: %w", dbcrypt.ErrInvalidKey, op, err)
	case isAccessDenied(err):
		return fmt.Errorf("%w: %s: %w", dbcrypt.ErrAuthenticationFailed, op, err)
	default:
		return fmt.Errorf("%w: %s: %w", dbcrypt.ErrKMSUnavailable, op, err)
	}
}

func isAccessDenied(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "AccessDeniedException", "UnrecognizedClientException", "InvalidSignatureException", "ExpiredTokenException":
		return true
	}
	return false
}
