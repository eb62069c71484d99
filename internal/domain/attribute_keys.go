package domain

// Evidence attribute names shared by detectors, scorers and evidence assemblers
const (
	KeyScenarioName      = "SCENARIO NAME"
	KeyCustomerType      = "CUSTOMER TYPE"
	KeyCustomerRisk      = "CUSTOMER RISK"
	KeyCustomerRiskLevel = "CUSTOMER RISK LEVEL"
	KeyFrequencyPeriod   = "FREQUENCY PERIOD"
	KeyLookbackPeriod    = "LOOKBACK PERIOD"
	KeyTotalTrxnAmount   = "TOTAL TRXN AMOUNT"
	KeyTotalHRGAmount    = "TOTAL HRG TRXN AMOUNT"
	KeyTotalHRGCount     = "TOTAL HRG TRXN COUNT"
	KeyHRGPercentage     = "PERCENTAGE TOTAL HRG TRXN AMOUNT"
	KeyAccountAge        = "ACCOUNT AGE"
	KeyPreviousAverage   = "PREVIOUS AVERAGE TRXN AMOUNT"
	KeyRiskPercentage    = "RISK PERCENTAGE"
	KeyAlertFlag         = "ALERT_FLAG"
	KeyTransactionRisk   = "TRXN RISK TYPE"
)

// Threshold parameter names
const (
	ThLookbackPeriod    = "LOOKBACK PERIOD"
	ThFrequencyPeriod   = "FREQUENCY PERIOD"
	ThIndividualAmount  = "INDIVIDUAL TRXN AMOUNT"
	ThHRGAmount         = "HRG TRXN AMOUNT"
	ThHRGCount          = "HRG TRXN COUNT"
	ThHRGPercentage     = "HRG % AMOUNT"
	ThMinTrxnAmount     = "MIN TRXN AMOUNT"
	ThMinRiskPercentage = "MIN RISK PERCENTAGE"
	ThMinAccountAge     = "MIN ACCT AGE"
)
