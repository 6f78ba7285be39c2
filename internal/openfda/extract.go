package openfda

import (
	"encoding/json"
	"strings"
)

// event mirrors the small slice of the OpenFDA adverse-event schema we
// actually read. The full record is kept as raw JSON in the store.
type event struct {
	SafetyReportID string `json:"safetyreportid"`
	ReceiptDate    string `json:"receiptdate"`
	ReceiveDate    string `json:"receivedate"`
	Patient        struct {
		Drug []struct {
			MedicinalProduct string `json:"medicinalproduct"`
		} `json:"drug"`
		Reaction []struct {
			ReactionMedDRAPT string `json:"reactionmeddrapt"`
		} `json:"reaction"`
	} `json:"patient"`
}

// Record is one adverse-event report reduced to the fields the pipeline
// stores and analyzes. Raw holds the original OpenFDA JSON verbatim.
type Record struct {
	SafetyReportID string
	ReceiveDate    string
	DrugName       string
	Reactions      string
	Raw            json.RawMessage
}

// extractRecords flattens raw OpenFDA results into records. Events with no
// report id are dropped; missing reactions become an empty string so the
// aggregator's UNKNOWN handling applies downstream.
func extractRecords(results []json.RawMessage) []Record {
	out := make([]Record, 0, len(results))
	for _, raw := range results {
		var ev event
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		if ev.SafetyReportID == "" {
			continue
		}
		date := ev.ReceiptDate
		if date == "" {
			date = ev.ReceiveDate
		}
		drug := ""
		if len(ev.Patient.Drug) > 0 {
			drug = ev.Patient.Drug[0].MedicinalProduct
		}
		reactions := make([]string, 0, len(ev.Patient.Reaction))
		for _, rx := range ev.Patient.Reaction {
			if rx.ReactionMedDRAPT != "" {
				reactions = append(reactions, rx.ReactionMedDRAPT)
			}
		}
		out = append(out, Record{
			SafetyReportID: ev.SafetyReportID,
			ReceiveDate:    date,
			DrugName:       drug,
			Reactions:      strings.Join(reactions, ";"),
			Raw:            raw,
		})
	}
	return out
}
