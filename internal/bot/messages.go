package bot

// =============================================================================
// General messages
// =============================================================================

const (
	MsgUnexpectedErr   = "Unexpected error: %s"
	MsgVersionInfo     = "Version: %s\nBuilt: %s"
	MsgDownloadFailed  = "Couldn't download the photo from Telegram. Please try again."
	MsgUnknownCommand  = "Unknown command %s. Send /help for the command list."
	MsgUnsupportedType = "Please send text or a photo."
)

// =============================================================================
// Admin command messages
// =============================================================================

const (
	MsgAdminUsage           = "Usage:\n/admin users add <user_id>\n/admin users remove <user_id>\n/admin users list"
	MsgAdminUserAddUsage    = "Usage: /admin users add <user_id>"
	MsgAdminUserRemoveUsage = "Usage: /admin users remove <user_id>"
	MsgAdminUserInvalidID   = "Invalid user ID. Please give a number."
	MsgAdminUserAdded       = "User %d added."
	MsgAdminUserRemoved     = "User %d removed."
	MsgAdminNoUsers         = "No allowed users."
	MsgAdminAllowedUsers    = "Allowed users:\n"
)
