package bionic

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

// Sentinel errors returned by the bionic package.
var (
	// ErrDRMProtected indicates the ePub file is protected by DRM
	// (e.g., Adobe ADEPT, Apple FairPlay, Readium LCP). Encrypted
	// documents cannot be rewritten.
	ErrDRMProtected = errors.New("bionic: file is DRM protected")

	// ErrInvalidEPub indicates the file is not a valid ePub
	// (e.g., missing container.xml and no .opf file found).
	ErrInvalidEPub = errors.New("bionic: invalid ePub file")

	// ErrNoInput indicates no input container path was supplied.
	ErrNoInput = errors.New("bionic: no input ePub path provided")

	// ErrUnsafePath indicates an archive entry would escape the
	// extraction directory.
	ErrUnsafePath = errors.New("bionic: unsafe archive entry path")
)

// Text codes attached to the errors surfaced by a run.
const (
	CodeNoInput         = "USAGE_NO_INPUT"
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeConfigParse     = "CONFIG_PARSE_FAILED"
	CodeCopyFailed      = "CONTAINER_COPY_FAILED"
	CodeExtractFailed   = "CONTAINER_EXTRACT_FAILED"
	CodePackFailed      = "CONTAINER_PACK_FAILED"
	CodeDRMProtected    = "CONTAINER_DRM_PROTECTED"
	CodeInvalidEPub     = "CONTAINER_INVALID"
	CodeRewriteFailed   = "DOCUMENT_REWRITE_FAILED"
	CodeCleanupFailed   = "CLEANUP_FAILED"
	CodeRunCancelled    = "RUN_CANCELLED"
	codeWorkspaceFailed = "WORKSPACE_CREATE_FAILED"
)

// wrapStage wraps err as an operation failure tagged with code.
// Errors that already carry a category are returned unchanged.
func wrapStage(err error, code, message string) error {
	if err == nil {
		return nil
	}
	if goerrors.IsWrapped(err) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryOperation, message).
		WithTextCode(code)
}

// TextCode returns the text code carried by err, or "" if err was not
// produced by this package.
func TextCode(err error) string {
	var e *goerrors.Error
	if errors.As(err, &e) {
		return e.TextCode
	}
	return ""
}
