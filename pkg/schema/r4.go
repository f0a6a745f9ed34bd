package schema

func one(name, typ string) Element  { return Element{Name: name, Type: typ, Max: 1} }
func many(name, typ string) Element { return Element{Name: name, Type: typ, Max: Unbounded} }

func choice(name string, typs ...string) Element {
	return Element{Name: name, Max: 1, Choices: typs}
}

// domainResource are the elements every resource in the tables inherits.
var domainResource = []Element{
	one("id", "id"),
	one("meta", "Meta"),
	one("implicitRules", "uri"),
	one("language", "code"),
	one("text", "Narrative"),
	many("contained", "Resource"),
	many("extension", "Extension"),
	many("modifierExtension", "Extension"),
}

var observationValue = []string{
	"Quantity", "CodeableConcept", "string", "boolean", "integer", "Range",
	"Ratio", "SampledData", "time", "dateTime", "Period",
}

var resourceDefs = map[string][]Element{
	"Patient": {
		many("identifier", "Identifier"),
		one("active", "boolean"),
		many("name", "HumanName"),
		many("telecom", "ContactPoint"),
		one("gender", "code"),
		one("birthDate", "date"),
		choice("deceased", "boolean", "dateTime"),
		many("address", "Address"),
		one("maritalStatus", "CodeableConcept"),
		choice("multipleBirth", "boolean", "integer"),
		many("photo", "Attachment"),
		many("contact", "Patient.contact"),
		many("communication", "Patient.communication"),
		many("generalPractitioner", "Reference"),
		one("managingOrganization", "Reference"),
		many("link", "Patient.link"),
	},
	"Observation": {
		many("identifier", "Identifier"),
		many("basedOn", "Reference"),
		many("partOf", "Reference"),
		one("status", "code"),
		many("category", "CodeableConcept"),
		one("code", "CodeableConcept"),
		one("subject", "Reference"),
		many("focus", "Reference"),
		one("encounter", "Reference"),
		choice("effective", "dateTime", "Period", "Timing", "instant"),
		one("issued", "instant"),
		many("performer", "Reference"),
		choice("value", observationValue...),
		one("dataAbsentReason", "CodeableConcept"),
		many("interpretation", "CodeableConcept"),
		many("note", "Annotation"),
		one("bodySite", "CodeableConcept"),
		one("method", "CodeableConcept"),
		one("specimen", "Reference"),
		one("device", "Reference"),
		many("referenceRange", "Observation.referenceRange"),
		many("hasMember", "Reference"),
		many("derivedFrom", "Reference"),
		many("component", "Observation.component"),
	},
	"Condition": {
		many("identifier", "Identifier"),
		one("clinicalStatus", "CodeableConcept"),
		one("verificationStatus", "CodeableConcept"),
		many("category", "CodeableConcept"),
		one("severity", "CodeableConcept"),
		one("code", "CodeableConcept"),
		many("bodySite", "CodeableConcept"),
		one("subject", "Reference"),
		one("encounter", "Reference"),
		choice("onset", "dateTime", "Age", "Period", "Range", "string"),
		choice("abatement", "dateTime", "Age", "Period", "Range", "string"),
		one("recordedDate", "dateTime"),
		one("recorder", "Reference"),
		one("asserter", "Reference"),
		many("note", "Annotation"),
	},
	"Encounter": {
		many("identifier", "Identifier"),
		one("status", "code"),
		one("class", "Coding"),
		many("type", "CodeableConcept"),
		one("serviceType", "CodeableConcept"),
		one("priority", "CodeableConcept"),
		one("subject", "Reference"),
		many("participant", "Encounter.participant"),
		one("period", "Period"),
		one("length", "Duration"),
		many("reasonCode", "CodeableConcept"),
		many("reasonReference", "Reference"),
		one("serviceProvider", "Reference"),
		one("partOf", "Reference"),
	},
	"Practitioner": {
		many("identifier", "Identifier"),
		one("active", "boolean"),
		many("name", "HumanName"),
		many("telecom", "ContactPoint"),
		many("address", "Address"),
		one("gender", "code"),
		one("birthDate", "date"),
	},
	"Organization": {
		many("identifier", "Identifier"),
		one("active", "boolean"),
		many("type", "CodeableConcept"),
		one("name", "string"),
		many("alias", "string"),
		many("telecom", "ContactPoint"),
		many("address", "Address"),
		one("partOf", "Reference"),
	},
	"MedicationRequest": {
		many("identifier", "Identifier"),
		one("status", "code"),
		one("intent", "code"),
		choice("medication", "CodeableConcept", "Reference"),
		one("subject", "Reference"),
		one("encounter", "Reference"),
		one("authoredOn", "dateTime"),
		one("requester", "Reference"),
		many("reasonCode", "CodeableConcept"),
		many("note", "Annotation"),
	},
	"Procedure": {
		many("identifier", "Identifier"),
		one("status", "code"),
		one("code", "CodeableConcept"),
		one("subject", "Reference"),
		one("encounter", "Reference"),
		choice("performed", "dateTime", "Period", "string", "Age", "Range"),
		many("reasonCode", "CodeableConcept"),
		many("bodySite", "CodeableConcept"),
		many("note", "Annotation"),
	},
	"AllergyIntolerance": {
		many("identifier", "Identifier"),
		one("clinicalStatus", "CodeableConcept"),
		one("verificationStatus", "CodeableConcept"),
		one("type", "code"),
		many("category", "code"),
		one("criticality", "code"),
		one("code", "CodeableConcept"),
		one("patient", "Reference"),
		choice("onset", "dateTime", "Age", "Period", "Range", "string"),
		one("recordedDate", "dateTime"),
		many("note", "Annotation"),
	},
	"Immunization": {
		many("identifier", "Identifier"),
		one("status", "code"),
		one("vaccineCode", "CodeableConcept"),
		one("patient", "Reference"),
		choice("occurrence", "dateTime", "string"),
		one("primarySource", "boolean"),
		one("lotNumber", "string"),
		one("expirationDate", "date"),
		many("note", "Annotation"),
	},
	"DiagnosticReport": {
		many("identifier", "Identifier"),
		one("status", "code"),
		many("category", "CodeableConcept"),
		one("code", "CodeableConcept"),
		one("subject", "Reference"),
		one("encounter", "Reference"),
		choice("effective", "dateTime", "Period"),
		one("issued", "instant"),
		many("result", "Reference"),
		one("conclusion", "string"),
	},
}

var datatypeDefs = map[string][]Element{
	"HumanName": {
		one("use", "code"),
		one("text", "string"),
		one("family", "string"),
		many("given", "string"),
		many("prefix", "string"),
		many("suffix", "string"),
		one("period", "Period"),
	},
	"Identifier": {
		one("use", "code"),
		one("type", "CodeableConcept"),
		one("system", "uri"),
		one("value", "string"),
		one("period", "Period"),
		one("assigner", "Reference"),
	},
	"CodeableConcept": {
		many("coding", "Coding"),
		one("text", "string"),
	},
	"Coding": {
		one("system", "uri"),
		one("version", "string"),
		one("code", "code"),
		one("display", "string"),
		one("userSelected", "boolean"),
	},
	"Quantity": {
		one("value", "decimal"),
		one("comparator", "code"),
		one("unit", "string"),
		one("system", "uri"),
		one("code", "code"),
	},
	"Reference": {
		one("reference", "string"),
		one("type", "uri"),
		one("identifier", "Identifier"),
		one("display", "string"),
	},
	"Period": {
		one("start", "dateTime"),
		one("end", "dateTime"),
	},
	"Range": {
		one("low", "Quantity"),
		one("high", "Quantity"),
	},
	"Ratio": {
		one("numerator", "Quantity"),
		one("denominator", "Quantity"),
	},
	"ContactPoint": {
		one("system", "code"),
		one("value", "string"),
		one("use", "code"),
		one("rank", "positiveInt"),
		one("period", "Period"),
	},
	"Address": {
		one("use", "code"),
		one("type", "code"),
		one("text", "string"),
		many("line", "string"),
		one("city", "string"),
		one("district", "string"),
		one("state", "string"),
		one("postalCode", "string"),
		one("country", "string"),
		one("period", "Period"),
	},
	"Attachment": {
		one("contentType", "code"),
		one("language", "code"),
		one("data", "base64Binary"),
		one("url", "url"),
		one("size", "unsignedInt"),
		one("title", "string"),
		one("creation", "dateTime"),
	},
	"Annotation": {
		choice("author", "Reference", "string"),
		one("time", "dateTime"),
		one("text", "markdown"),
	},
	"Extension": {
		one("url", "uri"),
		choice("value",
			"base64Binary", "boolean", "canonical", "code", "date", "dateTime",
			"decimal", "id", "instant", "integer", "markdown", "oid", "positiveInt",
			"string", "time", "unsignedInt", "uri", "url", "uuid",
			"Address", "Age", "Annotation", "Attachment", "CodeableConcept", "Coding",
			"ContactPoint", "Duration", "HumanName", "Identifier", "Period",
			"Quantity", "Range", "Ratio", "Reference"),
		many("extension", "Extension"),
	},
	"Meta": {
		one("versionId", "id"),
		one("lastUpdated", "instant"),
		one("source", "uri"),
		many("profile", "canonical"),
		many("security", "Coding"),
		many("tag", "Coding"),
	},
	"Narrative": {
		one("status", "code"),
		one("div", "xhtml"),
	},

	"Patient.contact": {
		many("relationship", "CodeableConcept"),
		one("name", "HumanName"),
		many("telecom", "ContactPoint"),
		one("address", "Address"),
		one("gender", "code"),
		one("organization", "Reference"),
		one("period", "Period"),
	},
	"Patient.communication": {
		one("language", "CodeableConcept"),
		one("preferred", "boolean"),
	},
	"Patient.link": {
		one("other", "Reference"),
		one("type", "code"),
	},
	"Observation.referenceRange": {
		one("low", "Quantity"),
		one("high", "Quantity"),
		one("type", "CodeableConcept"),
		many("appliesTo", "CodeableConcept"),
		one("age", "Range"),
		one("text", "string"),
	},
	"Observation.component": {
		one("code", "CodeableConcept"),
		choice("value", observationValue...),
		one("dataAbsentReason", "CodeableConcept"),
		many("interpretation", "CodeableConcept"),
		many("referenceRange", "Observation.referenceRange"),
	},
	"Encounter.participant": {
		many("type", "CodeableConcept"),
		one("period", "Period"),
		one("individual", "Reference"),
	},
}

// Quantity specializations share the Quantity elements.
var quantityAliases = []string{"Age", "Duration", "Distance", "Count", "SimpleQuantity", "MoneyQuantity"}

var (
	types     = map[string]map[string]Element{}
	resources = map[string]bool{}
)

func init() {
	index := func(name string, elems []Element) {
		m := make(map[string]Element, len(elems))
		for _, e := range elems {
			m[e.Name] = e
		}
		types[name] = m
	}

	for name, elems := range resourceDefs {
		all := append(append([]Element{}, domainResource...), elems...)
		index(name, all)
		resources[name] = true
	}
	for name, elems := range datatypeDefs {
		// every datatype carries extension
		all := elems
		if _, ok := findElement(elems, "extension"); !ok {
			all = append(append([]Element{}, elems...), many("extension", "Extension"))
		}
		index(name, all)
	}
	for _, alias := range quantityAliases {
		types[alias] = types["Quantity"]
	}
}

func findElement(elems []Element, name string) (Element, bool) {
	for _, e := range elems {
		if e.Name == name {
			return e, true
		}
	}
	return Element{}, false
}
