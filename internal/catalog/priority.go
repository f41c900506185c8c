package catalog

// priorityTable is the fixed classification order; earlier entries win.
// Types missing here rank after every entry, in catalog registration order.
var priorityTable = buildPriorityTable()

func buildPriorityTable() []SemanticType {
	table := []SemanticType{
		TypeError,
		TypeNegativeResponse,
		TypeAssertion,
		TypeException,
		TypeECUReset,
		TypeECUResetResponse,
		TypeSinceBootReset,
	}
	for _, c := range statusTokens {
		table = append(table, statusTokenType(c))
	}
	table = append(table, "EsysReturnCodeOK", "EsysReturnCodeOther")
	for _, c := range rsuPositiveCodes {
		table = append(table, rsuPositiveType(c))
	}
	for _, c := range rsuNegativeCodes {
		// 26 has never been part of the cascade; it ranks by registration.
		if c.code == "26" {
			continue
		}
		table = append(table, rsuNegativeType(c))
	}
	table = append(table,
		"RSU_RESPONSE_WITH_MULTI_DESC",
		"Check pdx template version",
		"Importing PDX Container:",
		"Extracted VIN from FA file:",
		"Check for cached signed NCDs",
		"Processed SVK:",
		"Read SVT before TAL execution started",
		"Checking Mirror-Protocol started",
		"Status readSecureEcuMode:",
		`Checking Programming Protection "PLUS" started`,
		`Checking Programming Protection "BASIC" started`,
		"TAL execution started.",
		"prepareECUforMirrorFlash started",
		"Generating Tal for",
		"finalizeECUMirrorFlash finished",
		"E-Sys ecuMirrorDeploy TA started",
		"cleanup_esys_process",
		"DEBUG_PORT_AVAILABILITY",
		"E-Sys ecuActivate TA started",
		"E-Sys ecuPoll TA started",
		"finalizeVehicleFlash finished",
		"finalizeVehicleCoding started",
		"prepareVehicleForCoding started",
		"MSM_checks summary report",
		"Your program receive_notification with data",
		"ipcClientsResponse",
		"TAS-SIM",
		"E-Sys cdDeploy TA started",
		"setup_dut_certif",
		"itf.pybus_sim.basic_rbs",
		"Send command: requestID:",
		"executionStatusOK",
		"executionStatusOther",
		"libStatusDone",
		"libStatusOther",
		"execution_resultOther",
		"execution_result_SUCCESS",
		"There was an error during TAL execution, please check the log files.",
		"TAL-Execution finished with status:",
		"finalizeECUMirrorFlash finished with error",
		"MirrorProtocolPrepFailed",
	)
	return table
}

// buildRanks assigns a rank to every type known to the catalog.
func buildRanks(rules []*Rule) map[SemanticType]int {
	ranks := make(map[SemanticType]int, len(priorityTable)+len(rules))
	for i, t := range priorityTable {
		if _, ok := ranks[t]; !ok {
			ranks[t] = i
		}
	}
	next := len(priorityTable)
	for _, r := range rules {
		if _, ok := ranks[r.Type]; ok {
			continue
		}
		ranks[r.Type] = next
		next++
	}
	return ranks
}
