package conversation

// =============================================================================
// Session messages
// =============================================================================

const (
	MsgSessionEnded     = "Session ended. To start a new session, type /start."
	MsgSessionInactive  = "Session is not active. Start with /start."
	MsgNoActiveSession  = "No active session. Use /start to begin."
	MsgNothingToGoBack  = "Nothing to go back to."
	MsgReturningToPhoto = "Returning to photo upload. Please send photo(s) again:"
	MsgReturningToField = "Going back. %s"
	MsgSkipNotAllowed   = "This field is required and can't be skipped. %s"
	MsgFieldRequired    = "Please enter a value. %s"
	MsgSendNextPhotos   = "Send photo(s) of the next item:"
	MsgPendingRequired  = "There are required details left. %s"
	MsgListingPending   = "A listing is in progress. Enter the price, or use /back to discard its photos."
	MsgSendPhotosFirst  = "Please send photo(s) of the item first."
	MsgPhotosPrompt     = "Now send photo(s) of the item."
	MsgFieldsSummary    = "Session started (%s):\n%s"
	MsgNoFieldsSummary  = "Session started (%s)."
	MsgSessionProfile   = "Profile: %s (%s)"
)

// =============================================================================
// Photo messages
// =============================================================================

const (
	MsgInvalidImage       = "Please send a valid image file."
	MsgUploadFailed       = "Couldn't upload the photo. Please try again."
	MsgProcessingFailed   = "Processing failed. Please send the photo again."
	MsgPricePrompt        = "Photo(s) uploaded. Now enter the price (e.g., 19.99):"
	MsgPhotoAdded         = "Photo added (%d in total)."
	MsgCategorySuggestion = "Suggested eBay category: %s (%s)"
	MsgListingPreview     = "Title: %s\nWeight class: %s"
)

// =============================================================================
// Price and publish messages
// =============================================================================

const (
	MsgInvalidPrice       = "Invalid price. Please enter a numeric value like 19.99."
	MsgMissingData        = "Missing listing data. Please resend the photo(s) and try again."
	MsgContactFailed      = "Failed to contact eBay: %s. Please try again."
	MsgListAnother        = "Do you want to list another item? Send photos now or /end to finish."
	MsgSomethingWentWrong = "Something went wrong. Please try again."
)

// =============================================================================
// Profile messages
// =============================================================================

const (
	MsgProfileList     = "Available profiles:\n%s\n\nUse /profile <id> to switch."
	MsgProfileSet      = "Profile set to %s."
	MsgProfileUnknown  = "Unknown profile %q. Valid profiles: %s"
	MsgProfileSaveFail = "Couldn't save the profile selection. Please try again."
)

// =============================================================================
// Listing history messages
// =============================================================================

const (
	MsgNoListings     = "No listings published yet."
	MsgRecentListings = "Recent listings:\n%s"
)

// =============================================================================
// Help
// =============================================================================

const MsgHelp = `
	Available commands:
	/start - Start a new session
	/end - End the current session
	/session - Show current session data
	/back - Go one step back
	/continue - Skip to the next item
	/profile - Show or switch the product profile
	/listings - Show your recent listings
	/help - Show this help message

	Send one of the commands to proceed.`
