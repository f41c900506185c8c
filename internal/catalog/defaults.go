package catalog

import "fmt"

const (
	colorReset        = "#3294cdff"
	colorStatusToken  = "#b0ff1eff"
	colorReturnOK     = "#00ffcc"
	colorReturnOther  = "#e64545f7"
	colorRSUPositive  = "#67f3b9f7"
	colorRSUNegative  = "#d72b2bf7"
	colorStep         = "#bbf7d0"
	colorESysTA       = "#a3d9ff"
	colorFixture      = "#ffe4b5"
	colorTestPassed   = "#00AA00"
	colorTestFailed   = "#FF0000"
	colorTestSkipped  = "#888888"
	testCaseIDPattern = `^[\w/\\.-]+\.py::[\w<>]+::[\w<>]+(?:\[[^\]]*\])?`

	// rsuPrefix matches the routine control response header shared by the
	// RSU response code rules; the code follows as the tenth byte.
	rsuPrefix = `71\s+(01|03)\s+10\s+7[0-4](\s+[0-9A-Fa-f]{2}){6}\s+`
	// statusTokenPrefix matches the status token read-back header.
	statusTokenPrefix = `71\s+01\s+0F\s+29(\s+[0-9A-Fa-f]{2}){3}\s+`
)

type codeLabel struct {
	code  string
	label string
}

var statusTokens = []codeLabel{
	{"00", "INITIALLY_DISABLED"},
	{"01", "ENABLED"},
	{"02", "DISABLED"},
	{"03", "EXPIRED"},
	{"FF", "INVALID_VALUE"},
}

var rsuPositiveCodes = []codeLabel{
	{"00", "SUCCESS"},
	{"11", "FILE_TRANSFER_RUNNING"},
	{"12", "PREPROCESSING_RUNNING"},
	{"40", "CHECKMEMORY_RUNNING"},
	{"41", "CHECK_PROGRAMMING_DEPENDENCIES_RUNNING"},
}

var rsuNegativeCodes = []codeLabel{
	{"01", "ACCESS_CONFIGURATION_TABLE_FAILED"},
	{"02", "CHECK_PROGRAMMING_DEPENDENCY_FLAGS_NOT_PRESENT"},
	{"03", "PREPROCESSING_FLAG_NOT_PRESENT"},
	{"04", "ACCESS_TO_WRITING_FLAGS_FAILED"},
	{"07", "PROGRAMMING_TOKEN_NOT_VALID_TIME"},
	{"08", "PROGRAMMING_TOKEN_VERSION_NOT_SUPPORTED"},
	{"09", "WRONG_ECU_UID"},
	{"0A", "DOWNLOAD_CANNOT_BE_STOPPED"},
	{"10", "FILE_ACCESS_DENIED_BY_MASTER"},
	{"13", "MEMORY_ACCESS_ERROR"},
	{"14", "MEMORY_INITIALIZATION_FAILED"},
	{"15", "NOT_ENOUGH_MEMORY"},
	{"16", "ACCESS_TO_SWE_FAILED"},
	{"17", "NO_CONSISTENT_SWE_SET_FOUND"},
	{"19", "SWE_DECRYPTION_FAILED"},
	{"20", "PROGRAMMING_TOKEN_LIST_EXISTING_SWES_INCORRECT"},
	{"21", "SWE_DELTA_ALGORITHM_FAILED"},
	{"22", "SWE_SIGNATURE_CHECK_FAILED"},
	{"23", "SWE_SIGNATURE_ERROR_AND_DELETION_FAILED"},
	{"24", "NO_CONSISTENT_SWE_SET_FOUND_AND_DELETION_FAILED"},
	{"26", "PROTOCOL_VERSION_NOT_SUPPORTED"},
	{"27", "FLAGS_SIGNATURE_CHECK_PRESENT"},
	{"28", "PROGRAMMING_TOKEN_SIGNATURE_CHECK_FAILED"},
	{"29", "PROGRAMMING_TOKEN_WRONG_VIN"},
	{"2A", "PROGRAMMING_TOKEN_SIGNATURE_ALGORITHM_NOT_SUPPORTED"},
	{"2B", "PROGRAMMING_TOKEN_ECU_ID_DOES_NOT_MATCH"},
	{"2C", "PROGRAMMING_TOKEN_NOT_SECURE_TOKEN_MODE_STORED"},
	{"2D", "PROGRAMMING_TOKEN_NO_HASH_VALUES_MODE_STORED"},
	{"2E", "PROGRAMMING_TOKEN_HASH_VALUES_MODE_DIFFER"},
	{"30", "CONNECTION_MASTER_FAILED"},
	{"31", "TRANSMISSION_ABORTED_BY_CLIENT"},
	{"32", "TRANSMISSION_ABORTED_BY_MASTER"},
	{"33", "WRITING_FINGERPRINT_FAILED"},
	{"34", "RESET_START_DOWNLOAD_AGAIN"},
	{"35", "FILE_NOT_FOUND"},
	{"50", "REMAINING_SWES_CANNOT_BE_COPIED"},
	{"60", "SVK_ABGLEICH_NOT_POSSIBLE"},
	{"61", "RESUME_AFTER_INTERRUPT_NOT_POSSIBLE"},
	{"70", "PREVIOUS_STEP_NOT_FINISHED"},
	{"71", "PROGRAMMING_COUNTER_EXEEDED"},
	{"72", "TARGET_SW_CONF_ACCORDING_PROG_PROTECTION_NOT_ADMISSIBLE"},
	{"80", "ACTIVATION_NOT_POSSIBLE"},
	{"90", "STREAM_TOO_LONG"},
	{"FC", "FATAL_INTERNAL_ERROR"},
}

// certificateStates decodes both octets of the multi-description response.
var certificateStates = map[string]string{
	"00": "OK",
	"01": "UNCHECKED",
	"02": "MALFORMED",
	"03": "EMPTY",
	"04": "INCOMPLETE",
	"05": "SECURITY_ERROR",
	"06": "WRONG_VIN17",
	"07": "CHECK_RUNNING",
	"08": "ISSUER_CERT_ERROR",
	"09": "WRONG_ECU_UID",
	"0A": "DECRYPTION_ERROR",
	"0B": "OWN_CERT_NOT_PRESENT",
	"0C": "OUTDATED",
	"0D": "KEY_ERROR",
	"FE": "NOT_USED",
	"FF": "OTHER",
}

func statusTokenType(c codeLabel) SemanticType {
	return SemanticType("statustoken" + c.label)
}

func rsuPositiveType(c codeLabel) SemanticType {
	return SemanticType("RSU_POSITIVE_RESPONSE_CODES_" + c.code)
}

// The misspelling is kept: it is the semantic type name consumers key on.
func rsuNegativeType(c codeLabel) SemanticType {
	return SemanticType("RSU_NIGATIVE_RESPONSE_CODES_" + c.code)
}

// step is a rule whose name, type and literal prefix coincide.
func step(text, pattern, color string) Rule {
	return Rule{Name: text, Pattern: pattern, Type: SemanticType(text), Color: color}
}

// DefaultRules returns the built-in rule set, in evaluation order.
func DefaultRules() []Rule {
	rules := []Rule{
		{Name: "Error", Pattern: `\[ERR\]`, Type: TypeError, Color: "#f06d6dff"},
		{Name: "AssertionFailed", Pattern: `\[Assert FAILED\].*`, Type: TypeAssertion, Color: "#FF8800"},
		{Name: "ExceptionFailed", Pattern: `\[Expect FAILED\].*`, Type: TypeException, Color: "#FF8800"},
		{Name: "negativeresponse", Pattern: `7F(?:\s+[0-9A-Fa-f]{2}){2}`, Type: TypeNegativeResponse, Color: "#e844faff"},
		{Name: "ECUReset", Pattern: `^.*Payload:.*\b(?:[0-9A-Fa-f]{2}\s+){2}00\s+9[01]\s+11\s+01\b.*$`, Type: TypeECUReset, Color: colorReset},
		{Name: "ECUResetRES", Pattern: `^.*Payload:\s+00\s+9[01](\s+[0-9A-Fa-f]{2}){2}\s+51\s+01\b.*$`, Type: TypeECUResetResponse, Color: colorReset},
		{Name: "SinceBootReset", Pattern: `^.*Since Boot\(Power On Reset\).*$`, Type: TypeSinceBootReset, Color: colorReset},
	}

	for _, c := range statusTokens {
		t := statusTokenType(c)
		rules = append(rules, Rule{
			Name: string(t), Pattern: statusTokenPrefix + c.code + `\b`,
			Type: t, Color: colorStatusToken, Description: c.label,
		})
	}

	rules = append(rules,
		Rule{Name: "EsysReturnCodeOK", Pattern: `EsysReturnCode\.OK`, Type: "EsysReturnCodeOK", Color: colorReturnOK},
		Rule{Name: "EsysReturnCodeOther", Pattern: `EsysReturnCode\.(?!OK)\w+`, Type: "EsysReturnCodeOther", Color: colorReturnOther},
	)

	for _, c := range rsuPositiveCodes {
		t := rsuPositiveType(c)
		rules = append(rules, Rule{
			Name: string(t), Pattern: rsuPrefix + c.code,
			Type: t, Color: colorRSUPositive, Description: c.label,
		})
	}
	for _, c := range rsuNegativeCodes {
		t := rsuNegativeType(c)
		rules = append(rules, Rule{
			Name: string(t), Pattern: rsuPrefix + c.code,
			Type: t, Color: colorRSUNegative, Description: c.label,
		})
	}

	rules = append(rules,
		Rule{
			Name:        "RSU_RESPONSE_WITH_MULTI_DESC",
			Pattern:     `71\s+01\s+10\s+AC\s+([0-9A-Fa-f]{2})\s+([0-9A-Fa-f]{2})`,
			Type:        "RSU_RESPONSE_WITH_MULTI_DESC",
			Color:       "#ff6b35",
			Description: "Response with multiple descriptions",
			Decoders: []FieldDecoder{
				{Name: "FIRST_OCTET", Group: 1, Labels: certificateStates},
				{Name: "SECOND_OCTET", Group: 2, Labels: certificateStates},
			},
		},
		step("Generating Tal for", `Generating Tal for.*$`, "#c2e0c6"),
		step("Check pdx template version", `Check pdx template version.*$`, "#d1ecf1"),
		step("Importing PDX Container:", `Importing PDX Container:.*$`, "#fff3cd"),
		step("Extracted VIN from FA file:", `Extracted VIN from FA file:.*$`, "#f8d7da"),
		step("Check for cached signed NCDs", `Check for cached signed NCDs.*$`, "#e2e3e5"),
		step("Processed SVK:", `Processed SVK:.*$`, "#d4edda"),
		step("Read SVT before TAL execution started", `Read SVT before TAL execution started.*$`, "#cce5ff"),
		step("Checking Mirror-Protocol started", `Checking Mirror-Protocol started.*$`, "#ffecd1"),
		step("Status readSecureEcuMode:", `Status readSecureEcuMode:.*$`, "#e0c9a6"),
		step(`Checking Programming Protection "PLUS" started`, `Checking Programming Protection "PLUS" started.*$`, "#fde2e2"),
		step(`Checking Programming Protection "BASIC" started`, `Checking Programming Protection "BASIC" started.*$`, "#e2e8f0"),
		step("TAL execution started.", `TAL execution started.*$`, "#c7d2fe"),
		step("prepareECUforMirrorFlash started", `prepareECUforMirrorFlash started.*$`, colorStep),
		step("finalizeECUMirrorFlash finished", `finalizeECUMirrorFlash finished.*$`, colorStep),
		eSysTA("ecuMirrorDeploy"),
		fixture("cleanup_esys_process", "cleanup_esys_process"),
		fixture("DEBUG_PORT_AVAILABILITY", "DEBUG PORT AVAILABILITY"),
		fixture("itf.pybus_sim.basic_rbs", "itf.pybus_sim.basic_rbs"),
		fixture("setup_dut_certif", "setup_dut_certif"),
		eSysTA("ecuActivate"),
		eSysTA("ecuPoll"),
		step("finalizeVehicleFlash finished", `finalizeVehicleFlash finished.*$`, colorStep),
		eSysTA("cdDeploy"),
		step("prepareVehicleForCoding started", `prepareVehicleForCoding started.*$`, colorStep),
		step("finalizeVehicleCoding started", `finalizeVehicleCoding started.*$`, colorStep),
		Rule{Name: "MSM_checks summary report", Pattern: `---------- MSM_checks summary report ----------`, Type: "MSM_checks summary report", Color: colorStep},
		step("Your program receive_notification with data", `Your program receive_notification with data.*$`, colorStep),
		Rule{Name: "ipcClientsResponse", Pattern: `ipcClientsResponse \{`, Type: "ipcClientsResponse", Color: colorStep},
		Rule{Name: "TAS-SIM", Pattern: `TAS-SIM.{3}.`, Type: "TAS-SIM", Color: colorStep},
		step("Send command: requestID:", `Send command: requestID:.*$`, colorStep),
		Rule{Name: "executionStatus: OK", Pattern: `executionStatus:\ OK`, Type: "executionStatusOK", Color: colorReturnOK},
		Rule{Name: "executionStatusOther", Pattern: `executionStatus:\ (?!OK)\w+`, Type: "executionStatusOther", Color: colorReturnOther},
		Rule{Name: "libStatus:Done", Pattern: `libStatus\: Done`, Type: "libStatusDone", Color: colorReturnOK},
		Rule{Name: "libStatusOther", Pattern: `libStatus\: (?!Done)\w+`, Type: "libStatusOther", Color: colorReturnOther},
		Rule{Name: "execution_result: SUCCESS", Pattern: `execution_result\: SUCCESS`, Type: "execution_result_SUCCESS", Color: colorReturnOK},
		Rule{Name: "execution_resultOther", Pattern: `execution_result\: (?!SUCCESS)\w+`, Type: "execution_resultOther", Color: colorReturnOther},
		Rule{Name: "prepareECUforMirrorFlash started (short)", Pattern: `prepareECUforMirrorFlash started.`, Type: "prepareECUforMirrorFlash started", Color: colorStep},
		step("There was an error during TAL execution, please check the log files.", `There was an error during TAL execution, please check the log files.`, colorStep),
		Rule{Name: "finalizeECUMirrorFlash finished (short)", Pattern: `finalizeECUMirrorFlash finished.`, Type: "finalizeECUMirrorFlash finished", Color: colorStep},
		step("TAL-Execution finished with status:", `TAL-Execution finished with status:.*$`, colorStep),
		step("finalizeECUMirrorFlash finished with error", `finalizeECUMirrorFlash finished with error.`, colorStep),
		Rule{
			Name:     "MirrorProtocolPrepFailed",
			Pattern:  `^.*Mirror Protocol preparation failed for given ECU:\s*(ECUId:[^\s]+)\s*with return code:\s*(\d{1,3}).*$`,
			Type:     "MirrorProtocolPrepFailed",
			Color:    "#ffcccb",
			HexGroup: 2,
		},

		Rule{Name: "TestCase", Pattern: testCaseIDPattern, Type: TypeTestCase, Color: colorTestPassed, Scope: ScopeHeader},
		Rule{Name: "TestCaseFailed", Pattern: testCaseIDPattern, Type: TypeTestCaseFailed, Color: colorTestFailed, Scope: ScopeHeader},
		Rule{Name: "TestCaseSkipped", Pattern: testCaseIDPattern, Type: TypeTestCaseSkipped, Color: colorTestSkipped, Scope: ScopeHeader},
	)
	return rules
}

func eSysTA(transaction string) Rule {
	text := fmt.Sprintf("E-Sys %s TA started", transaction)
	return Rule{
		Name:    text,
		Pattern: fmt.Sprintf(`\[E-Sys\] <\[.*\] Transaction type: %s;  Message: TA started.*$`, transaction),
		Type:    SemanticType(text),
		Color:   colorESysTA,
	}
}

func fixture(name, tag string) Rule {
	return Rule{Name: name, Pattern: `\[` + tag + `\]`, Type: SemanticType(name), Color: colorFixture}
}
