// internal/providers/local/prompt.go
package local

// Instruction template used by Llama-2 and Mistral style chat models. The
// system part opens the instruction block and the user part closes it, so a
// cached system prefix can be extended by any user prompt.

// WrapSystem renders the opening of an instruction block.
func WrapSystem(system string) string {
	return "<s>[INST]" + system + " "
}

// WrapUser renders the closing of an instruction block.
func WrapUser(user string) string {
	return user + " [/INST]"
}

// WrapPrompt renders a complete prompt. Nil parts are omitted.
func WrapPrompt(system, user *string) string {
	switch {
	case system != nil && user != nil:
		return WrapSystem(*system) + WrapUser(*user)
	case system != nil:
		return WrapSystem(*system)
	case user != nil:
		return "<s>[INST]" + WrapUser(*user)
	}
	return ""
}
