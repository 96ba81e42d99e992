package nlquery

import "github.com/ehr/nlquery/internal/platform/fhir"

func icd10(code, display string) fhir.Coding {
	return fhir.Coding{System: fhir.SystemICD10, Code: code, Display: display}
}

func snomed(code, display string) fhir.Coding {
	return fhir.Coding{System: fhir.SystemSNOMED, Code: code, Display: display}
}

// BuiltinEntries returns the default condition table.
func BuiltinEntries() []ConditionEntry {
	return []ConditionEntry{
		{
			Name:      "diabetes",
			Display:   "Diabetes mellitus",
			Synonyms:  []string{"diabetic", "diabetes mellitus", "type 2 diabetes", "t2dm", "dm"},
			Primary:   icd10("E11", "Type 2 diabetes mellitus"),
			Secondary: snomed("73211009", "Diabetes mellitus"),
		},
		{
			Name:      "hypertension",
			Display:   "Hypertension",
			Synonyms:  []string{"hypertensive", "high blood pressure", "htn", "elevated blood pressure"},
			Primary:   icd10("I10", "Essential (primary) hypertension"),
			Secondary: snomed("38341003", "Hypertensive disorder"),
		},
		{
			Name:      "asthma",
			Display:   "Asthma",
			Synonyms:  []string{"asthmatic", "bronchial asthma"},
			Primary:   icd10("J45", "Asthma"),
			Secondary: snomed("195967001", "Asthma"),
		},
		{
			Name:      "copd",
			Display:   "COPD",
			Synonyms:  []string{"chronic obstructive pulmonary disease", "chronic obstructive lung disease"},
			Primary:   icd10("J44", "Other chronic obstructive pulmonary disease"),
			Secondary: snomed("13645005", "Chronic obstructive lung disease"),
		},
		{
			Name:      "cancer",
			Display:   "Malignant neoplasm",
			Synonyms:  []string{"cancerous", "malignancy", "malignant neoplasm", "malignant tumor", "malignant tumour"},
			Primary:   icd10("C80", "Malignant neoplasm without specification of site"),
			Secondary: snomed("363346000", "Malignant neoplastic disease"),
		},
		{
			Name:      "covid",
			Display:   "COVID-19",
			Synonyms:  []string{"covid-19", "covid19", "coronavirus", "sars-cov-2", "sars cov 2 infection"},
			Primary:   icd10("U07.1", "COVID-19"),
			Secondary: snomed("840539006", "Disease caused by SARS-CoV-2"),
		},
		{
			Name:      "pneumonia",
			Display:   "Pneumonia",
			Synonyms:  []string{"lung infection"},
			Primary:   icd10("J18", "Pneumonia, unspecified organism"),
			Secondary: snomed("233604007", "Pneumonia"),
		},
		{
			Name:      "heart disease",
			Display:   "Heart disease",
			Synonyms:  []string{"cardiac disease", "heart condition", "cardiovascular disease"},
			Primary:   icd10("I51", "Complications and ill-defined descriptions of heart disease"),
			Secondary: snomed("56265001", "Heart disease"),
		},
		{
			Name:      "stroke",
			Display:   "Stroke",
			Synonyms:  []string{"cva", "cerebrovascular accident", "brain attack"},
			Primary:   icd10("I64", "Stroke, not specified as haemorrhage or infarction"),
			Secondary: snomed("230690007", "Cerebrovascular accident"),
		},
		{
			Name:      "anxiety",
			Display:   "Anxiety disorder",
			Synonyms:  []string{"anxious", "anxiety disorder", "generalized anxiety disorder"},
			Primary:   icd10("F41.9", "Anxiety disorder, unspecified"),
			Secondary: snomed("48694002", "Anxiety"),
		},
		{
			Name:      "depression",
			Display:   "Depressive disorder",
			Synonyms:  []string{"depressed", "depressive disorder", "major depression", "clinical depression"},
			Primary:   icd10("F32.9", "Major depressive disorder, single episode, unspecified"),
			Secondary: snomed("35489007", "Depressive disorder"),
		},
		{
			Name:      "migraine",
			Display:   "Migraine",
			Synonyms:  []string{"migraine headache"},
			Primary:   icd10("G43.9", "Migraine, unspecified"),
			Secondary: snomed("37796009", "Migraine"),
		},
		{
			Name:      "arthritis",
			Display:   "Arthritis",
			Synonyms:  []string{"arthritic", "osteoarthritis", "joint inflammation"},
			Primary:   icd10("M19.90", "Unspecified osteoarthritis, unspecified site"),
			Secondary: snomed("3723001", "Arthritis"),
		},
		{
			Name:      "obesity",
			Display:   "Obesity",
			Synonyms:  []string{"obese", "morbid obesity"},
			Primary:   icd10("E66.9", "Obesity, unspecified"),
			Secondary: snomed("414915002", "Obese"),
		},
		{
			Name:      "allergy",
			Display:   "Allergy to substance",
			Synonyms:  []string{"allergic", "allergies"},
			Primary:   icd10("T78.40", "Allergy, unspecified"),
			Secondary: snomed("418917006", "Allergy to substance"),
		},
		{
			Name:      "dementia",
			Display:   "Dementia",
			Synonyms:  []string{"demented", "senile dementia"},
			Primary:   icd10("F03", "Unspecified dementia"),
			Secondary: snomed("52448006", "Dementia"),
		},
	}
}

// BuiltinVocabulary builds the default vocabulary. The table is static, so a
// construction error is a programming error.
func BuiltinVocabulary() *Vocabulary {
	v, err := NewVocabulary(BuiltinEntries())
	if err != nil {
		panic("nlquery: invalid builtin vocabulary: " + err.Error())
	}
	return v
}
