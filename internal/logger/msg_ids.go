package logger

// Every log message gets a symbolic message ID so callers can tune the log
// level for one category of message at a time (e.g. "downgrade every
// module-not-found to a warning"). Errors keep their ID too, even though the
// build's exit code can't be changed by a level override.
type MsgID = uint8

const (
	MsgID_None MsgID = iota

	// Refinement / resolution (§7 error taxonomy)
	MsgID_ModuleNotFound          // code 2307
	MsgID_Unsupported             // code 20001
	MsgID_JsError                 // code 20002
	MsgID_Duplicated              // code 20003
	MsgID_WrongUsage              // code 20004
	MsgID_TooSlow                 // code 20005, advisory only
	MsgID_InternalError           // code 20000

	// Non-fatal advisories
	MsgID_AmbiguousVarName
	MsgID_EmptySourceFile
	MsgID_StaleCacheEvicted
	MsgID_CircularDependency
	MsgID_IgnoredSuppressedImport

	MsgID_END // Keep this at the end (used only for tests)
)

// Code returns the symbolic error code used in diagnostics and documentation
// (§7), or 0 for message IDs that aren't part of the error taxonomy.
func Code(id MsgID) int {
	switch id {
	case MsgID_InternalError:
		return 20000
	case MsgID_ModuleNotFound:
		return 2307
	case MsgID_Unsupported:
		return 20001
	case MsgID_JsError:
		return 20002
	case MsgID_Duplicated:
		return 20003
	case MsgID_WrongUsage:
		return 20004
	case MsgID_TooSlow:
		return 20005
	default:
		return 0
	}
}

func StringToMsgIDs(str string, logLevel LogLevel, overrides map[MsgID]LogLevel) {
	switch str {
	case "module-not-found":
		overrides[MsgID_ModuleNotFound] = logLevel
	case "unsupported":
		overrides[MsgID_Unsupported] = logLevel
	case "js-error":
		overrides[MsgID_JsError] = logLevel
	case "duplicated":
		overrides[MsgID_Duplicated] = logLevel
	case "wrong-usage":
		overrides[MsgID_WrongUsage] = logLevel
	case "too-slow":
		overrides[MsgID_TooSlow] = logLevel
	case "internal-error":
		overrides[MsgID_InternalError] = logLevel
	case "ambiguous-var-name":
		overrides[MsgID_AmbiguousVarName] = logLevel
	case "empty-source-file":
		overrides[MsgID_EmptySourceFile] = logLevel
	case "stale-cache-evicted":
		overrides[MsgID_StaleCacheEvicted] = logLevel
	case "circular-dependency":
		overrides[MsgID_CircularDependency] = logLevel
	case "ignored-suppressed-import":
		overrides[MsgID_IgnoredSuppressedImport] = logLevel
	default:
		// Ignore invalid entries since this message id may have
		// been renamed/removed since when this code was written
	}
}

func MsgIDToString(id MsgID) string {
	switch id {
	case MsgID_ModuleNotFound:
		return "module-not-found"
	case MsgID_Unsupported:
		return "unsupported"
	case MsgID_JsError:
		return "js-error"
	case MsgID_Duplicated:
		return "duplicated"
	case MsgID_WrongUsage:
		return "wrong-usage"
	case MsgID_TooSlow:
		return "too-slow"
	case MsgID_InternalError:
		return "internal-error"
	case MsgID_AmbiguousVarName:
		return "ambiguous-var-name"
	case MsgID_EmptySourceFile:
		return "empty-source-file"
	case MsgID_StaleCacheEvicted:
		return "stale-cache-evicted"
	case MsgID_CircularDependency:
		return "circular-dependency"
	case MsgID_IgnoredSuppressedImport:
		return "ignored-suppressed-import"
	default:
		return ""
	}
}

// Some message IDs are more diverse internally than externally (in case we
// want to expand the set of them later on). So just map these to the largest
// one arbitrarily since you can't tell the difference externally anyway.
func StringToMaximumMsgID(id string) MsgID {
	overrides := make(map[MsgID]LogLevel)
	maxID := MsgID_None
	StringToMsgIDs(id, LevelInfo, overrides)
	for id := range overrides {
		if id > maxID {
			maxID = id
		}
	}
	return maxID
}
