// Package validation checks caller input before a transfer is started.
//
// Every check returns a *errors.StorageError whose Op names the check, so
// callers can match the sentinel with errors.Is and still see which input
// was rejected.
package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

const (
	maxKeyLength           = 1024
	maxMetadataKeyLength   = 128
	maxMetadataValueLength = 2048
)

var mimePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9\-+.]*/[a-zA-Z0-9][a-zA-Z0-9\-+.]*(\s*;.*)?$`)

// ValidateBucketName checks the S3 bucket naming rules: 3-63 characters of
// lowercase letters, digits, dots and hyphens, starting and ending with a
// letter or digit, and not formatted as an IP address.
func ValidateBucketName(bucket string) error {
	fail := func(msg string) error {
		return errors.NewStorageError("validateBucketName", errors.ErrInvalidBucketName).
			WithKey(bucket).
			WithMessage(msg)
	}

	if bucket == "" {
		return fail("bucket name cannot be empty")
	}
	if len(bucket) < 3 || len(bucket) > 63 {
		return fail("bucket name must be between 3 and 63 characters long")
	}
	for _, r := range bucket {
		if !isValidBucketChar(r) {
			return fail("bucket name can only contain lowercase letters, numbers, dots, and hyphens")
		}
	}
	first, last := bucket[0], bucket[len(bucket)-1]
	if first == '-' || first == '.' || last == '-' || last == '.' {
		return fail("bucket name cannot start or end with a hyphen or dot")
	}
	if strings.Contains(bucket, "..") {
		return fail("bucket name cannot contain two adjacent periods")
	}
	if isIPAddress(bucket) {
		return fail("bucket name cannot be formatted as an IP address")
	}
	return nil
}

// ValidateObjectKey rejects empty keys, path traversal, keys longer than
// 1024 bytes and keys with control characters.
func ValidateObjectKey(key string) error {
	fail := func(msg string) error {
		return errors.NewStorageError("validateObjectKey", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage(msg)
	}

	switch {
	case key == "":
		return fail("object key cannot be empty")
	case hasPathTraversal(key):
		return fail("object key cannot contain path traversal sequences")
	case len(key) > maxKeyLength:
		return fail(fmt.Sprintf("object key cannot exceed %d characters", maxKeyLength))
	case hasControlCharacters(key):
		return fail("object key cannot contain control characters")
	}
	return nil
}

// ValidateIdentity checks the key and the access level of id.
func ValidateIdentity(id transfertypes.Identity) error {
	if err := ValidateObjectKey(id.Key); err != nil {
		return err
	}
	return validateLevel(id)
}

// ValidatePath checks a listing prefix. Unlike an object identity its key
// may be empty, which addresses the whole access level.
func ValidatePath(id transfertypes.Identity) error {
	if id.Key != "" {
		if err := ValidateObjectKey(id.Key); err != nil {
			return err
		}
	}
	return validateLevel(id)
}

func validateLevel(id transfertypes.Identity) error {
	if err := id.Validate(); err != nil {
		return errors.NewStorageError("validateIdentity", err).WithKey(id.Key)
	}
	if strings.ContainsAny(id.IdentityID, "/\\") || hasControlCharacters(id.IdentityID) {
		return errors.NewStorageError("validateIdentity", errors.ErrInvalidInput).
			WithKey(id.Key).
			WithMessage("identity id cannot contain separators or control characters")
	}
	return nil
}

// ValidateMetadata checks user metadata keys and values.
func ValidateMetadata(metadata map[string]string) error {
	for key, value := range metadata {
		if err := validateMetadataKey(key); err != nil {
			return err
		}
		if err := validateMetadataValue(value); err != nil {
			return err
		}
	}
	return nil
}

// ValidateContentType accepts an empty value or a well-formed MIME type.
func ValidateContentType(contentType string) error {
	if contentType == "" {
		return nil
	}
	if !mimePattern.MatchString(contentType) {
		return errors.NewStorageError("validateContentType", errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("content type %q must be a valid MIME type", contentType))
	}
	return nil
}

// ValidateACL accepts an empty value or one of the canned ACLs.
func ValidateACL(acl transfertypes.ObjectACL) error {
	switch acl {
	case "",
		transfertypes.ACLPrivate,
		transfertypes.ACLPublicRead,
		transfertypes.ACLPublicReadWrite,
		transfertypes.ACLAuthenticatedRead,
		transfertypes.ACLBucketOwnerRead,
		transfertypes.ACLBucketOwnerFull:
		return nil
	}
	return errors.NewStorageError("validateACL", errors.ErrInvalidInput).
		WithMessage(fmt.Sprintf("unknown ACL %q", acl))
}

// ValidateSSE checks that a KMS configuration names a key and that no key
// is given for service-managed encryption.
func ValidateSSE(sse *transfertypes.SSEConfig) error {
	if sse == nil {
		return nil
	}
	fail := func(msg string) error {
		return errors.NewStorageError("validateSSE", errors.ErrInvalidInput).WithMessage(msg)
	}
	switch sse.Type {
	case transfertypes.SSES3:
		if sse.KMSKeyID != "" {
			return fail("KMS key id is only valid with aws:kms encryption")
		}
	case transfertypes.SSEKMS:
		if sse.KMSKeyID == "" {
			return fail("aws:kms encryption requires a KMS key id")
		}
	default:
		return fail(fmt.Sprintf("unknown encryption type %q", sse.Type))
	}
	return nil
}

// ValidateUpload runs every check that applies to an upload.
func ValidateUpload(id transfertypes.Identity, cfg *transfertypes.UploadOptionConfig) error {
	if err := ValidateIdentity(id); err != nil {
		return err
	}
	if err := ValidateContentType(cfg.ContentType); err != nil {
		return err
	}
	if err := ValidateMetadata(cfg.Metadata); err != nil {
		return err
	}
	if err := ValidateACL(cfg.ACL); err != nil {
		return err
	}
	return ValidateSSE(cfg.SSE)
}

// ValidateTransfer checks the engine settings shared by both directions.
func ValidateTransfer(cfg *transfertypes.TransferConfig) error {
	fail := func(msg string) error {
		return errors.NewStorageError("validateTransfer", errors.ErrInvalidInput).WithMessage(msg)
	}
	if cfg.PartSize < 0 {
		return fail("part size cannot be negative")
	}
	if cfg.Concurrency < 0 {
		return fail("concurrency cannot be negative")
	}
	if r := cfg.Retry; r != nil {
		if r.MaxAttempts < 0 || r.BaseDelay < 0 || r.MaxDelay < 0 {
			return fail("retry policy values cannot be negative")
		}
		if r.Jitter > 1 {
			return fail("retry jitter cannot exceed 1")
		}
	}
	return nil
}

func isValidBucketChar(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || r == '.' || r == '-'
}

func isIPAddress(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if part == "" || len(part) > 3 {
			return false
		}
		num := 0
		for _, r := range part {
			if r < '0' || r > '9' {
				return false
			}
			num = num*10 + int(r-'0')
		}
		if num > 255 {
			return false
		}
	}
	return true
}

func hasPathTraversal(key string) bool {
	if strings.Contains(key, "..") {
		return true
	}
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if strings.HasPrefix(cleaned, "/") {
		return true
	}
	// Windows drive paths
	return len(cleaned) >= 3 && cleaned[1] == ':' && cleaned[2] == '/'
}

func hasControlCharacters(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}

func validateMetadataKey(key string) error {
	fail := func(msg string) error {
		return errors.NewStorageError("validateMetadata", errors.ErrInvalidInput).WithMessage(msg)
	}

	if key == "" {
		return fail("metadata key cannot be empty")
	}
	if len(key) > maxMetadataKeyLength {
		return fail(fmt.Sprintf("metadata key cannot exceed %d characters", maxMetadataKeyLength))
	}
	lower := strings.ToLower(key)
	for _, prefix := range []string{"aws:", "x-amz-"} {
		if strings.HasPrefix(lower, prefix) {
			return fail(fmt.Sprintf("metadata key cannot start with reserved prefix: %s", prefix))
		}
	}
	for _, r := range key {
		if r <= ' ' || r > '~' {
			return fail("metadata key can only contain printable ASCII characters")
		}
	}
	return nil
}

func validateMetadataValue(value string) error {
	if len(value) > maxMetadataValueLength {
		return errors.NewStorageError("validateMetadata", errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("metadata value cannot exceed %d characters", maxMetadataValueLength))
	}
	for _, r := range value {
		if !unicode.IsPrint(r) && r != '\t' {
			return errors.NewStorageError("validateMetadata", errors.ErrInvalidInput).
				WithMessage("metadata value can only contain printable characters")
		}
	}
	return nil
}
