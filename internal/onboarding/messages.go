package onboarding

const (
	welcomeMessage = "👋 Welcome to ChatPay! Send and receive digital dollars right here in chat.\n\n" +
		"First, secure your account with a 4-6 digit PIN. Reply with \"Set PIN 1234\" (use your own digits)."

	pinPromptMessage = "Please choose a 4-6 digit PIN to finish setting up. Reply with \"Set PIN 1234\" (use your own digits)."

	completeMessage = "✅ Your PIN is set and your wallet is ready.\n\nAddress: %s\n\n" +
		"Try \"balance\", \"send $5 to +15551234567\" or \"help\"."

	completeNoWalletMessage = "✅ Your PIN is set. We are still preparing your wallet; send \"account\" in a moment to see it.\n\n" +
		"Try \"balance\" or \"help\"."
)
