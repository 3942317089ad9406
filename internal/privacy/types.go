// Package privacy reduces raw lab records to an allow-listed, identity-free
// payload before anything is sent to a language model.
package privacy

// TestName is a lab test that may be shared with the AI gateway.
type TestName string

const (
	TestCholesterol   TestName = "Cholesterol"
	TestHDL           TestName = "HDL"
	TestLDL           TestName = "LDL"
	TestTriglycerides TestName = "Triglycerides"
	TestTSH           TestName = "TSH"
	TestT4            TestName = "T4"
	TestGlucose       TestName = "Glucose"
	TestHbA1c         TestName = "HbA1c"
	TestWBC           TestName = "WBC"
	TestRBC           TestName = "RBC"
	TestHaemoglobin   TestName = "Haemoglobin"
	TestPlatelets     TestName = "Platelets"
	TestFerritin      TestName = "Ferritin"
	TestVitaminD      TestName = "Vitamin D"
	TestVitaminB12    TestName = "Vitamin B12"
	TestCreatinine    TestName = "Creatinine"
	TestEGFR          TestName = "eGFR"
	TestALT           TestName = "ALT"
	TestCRP           TestName = "CRP"
)

// Valid reports whether n is one of the allowed tests. Matching is exact and
// case-sensitive.
func (n TestName) Valid() bool {
	switch n {
	case TestCholesterol, TestHDL, TestLDL, TestTriglycerides,
		TestTSH, TestT4, TestGlucose, TestHbA1c,
		TestWBC, TestRBC, TestHaemoglobin, TestPlatelets,
		TestFerritin, TestVitaminD, TestVitaminB12,
		TestCreatinine, TestEGFR, TestALT, TestCRP:
		return true
	default:
		return false
	}
}

// AllowedTests returns the allow-list in display order.
func AllowedTests() []TestName {
	return []TestName{
		TestCholesterol, TestHDL, TestLDL, TestTriglycerides,
		TestTSH, TestT4, TestGlucose, TestHbA1c,
		TestWBC, TestRBC, TestHaemoglobin, TestPlatelets,
		TestFerritin, TestVitaminD, TestVitaminB12,
		TestCreatinine, TestEGFR, TestALT, TestCRP,
	}
}

// TestEntry is a single allow-listed measurement.
type TestEntry struct {
	Name      TestName `json:"name"`
	Value     Value    `json:"value"`
	Unit      *string  `json:"unit"`
	Reference *string  `json:"reference"`
}

// Payload is the only shape of lab data that leaves the service.
type Payload struct {
	Tests      []TestEntry `json:"tests"`
	SampleDate *string     `json:"sample_date"`
}

// PIIField identifies a kind of personal data found by the Scanner.
type PIIField string

const (
	PIIFieldEmail      PIIField = "email"
	PIIFieldPhone      PIIField = "phone"
	PIIFieldNHSNumber  PIIField = "nhs_number"
	PIIFieldNationalID PIIField = "national_id"
)

// Finding is a PII-like match. Only the masked form is kept.
type Finding struct {
	Field       PIIField `json:"field"`
	MaskedValue string   `json:"masked_value"`
}
