package bot

import "fmt"

const (
	msgGreeting = "Hi! Send me a document and I'll ask where to save it on Google Drive."

	msgInvalidPath = "That doesn't look like a folder path. Send something like Invoices/2025/Amazon."

	msgAnswerYesNo = "Please answer Yes or No."

	msgCancelled = "Operation cancelled."

	msgDriveFailed = "Google Drive request failed and the upload was aborted. Please try again later."

	msgUploadFailed = "Something went wrong while uploading the file. Please try again."

	msgHistoryEmpty = "No uploads yet. Send me a document to get started."
)

func msgAskPath(fileName string) string {
	return fmt.Sprintf(
		"Got the file %q.\n\nWhich folder path should I save it to? (e.g. Invoices/2025/Amazon)\n\nYou can abort at any time with /cancel.",
		fileName,
	)
}

func msgConfirmExisting(path string) string {
	return fmt.Sprintf("The folder %q already exists.\nUpload the file there?", path)
}

func msgConfirmCreate(path string) string {
	return fmt.Sprintf("The folder %q does not exist.\nCreate it and upload the file?", path)
}

func msgUploaded(path string) string {
	return fmt.Sprintf("Done! File uploaded to %q.", path)
}
