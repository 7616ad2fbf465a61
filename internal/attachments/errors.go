package attachments

import "chathub/pkg/types"

var (
	ErrFileTooLarge    = types.Invalid("This file is too large to send.")
	ErrEmptyFile       = types.Invalid("The attached file is empty.")
	ErrInvalidFileData = types.Invalid("The attached file could not be read.")
	ErrFileNotFound    = types.NotFound("That file no longer exists.")
)
