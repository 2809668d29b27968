package models

import "time"

// Sticker is one product label recognised in an uploaded image.
// Every field is optional; a nil pointer means the recognition backend did not
// return a usable value for it.
type Sticker struct {
	Brand      *string `json:"brand"`
	Product    *string `json:"product"`
	Dimensions *string `json:"dimensions"`
	GTIN       *string `json:"gtin"`
	Ref        *string `json:"ref"`
	Lot        *string `json:"lot"`
}

// AggregatedSticker is a Sticker together with the number of times it was seen
// in a single upload. Key is the dedup key it was grouped under.
type AggregatedSticker struct {
	Sticker
	Key      string `json:"-"`
	Quantity int    `json:"quantity"`
}

// ProcedureInfo is the optional metadata a caller can attach to an upload.
type ProcedureInfo struct {
	Date          *time.Time `json:"procedureDate,omitempty"`
	Hospital      string     `json:"hospital,omitempty"`
	Doctor        string     `json:"doctor,omitempty"`
	ProcedureName string     `json:"procedure,omitempty"`
	BillingNo     string     `json:"billingNo,omitempty"`
}

// LabelRow is one persisted row in the product_labels table/collection.
type LabelRow struct {
	RunID          string     `firestore:"runId"`
	DocumentName   string     `firestore:"imageName"`
	UserID         string     `firestore:"userId"`
	StorageLocator string     `firestore:"fileKey"`
	Brand          *string    `firestore:"brand"`
	Product        *string    `firestore:"item"`
	Dimensions     *string    `firestore:"dimensions"`
	GTIN           *string    `firestore:"gtin"`
	Ref            *string    `firestore:"ref"`
	Lot            *string    `firestore:"lot"`
	Quantity       int        `firestore:"quantity"`
	ProcedureDate  *time.Time `firestore:"procedureDate"`
	Hospital       string     `firestore:"hospital,omitempty"`
	Doctor         string     `firestore:"doctor,omitempty"`
	ProcedureName  string     `firestore:"procedureName,omitempty"`
	BillingNo      string     `firestore:"billingNo,omitempty"`
	CreatedAt      time.Time  `firestore:"createdAt"`
}

// NewLabelRow builds the row written for one aggregated sticker.
func NewLabelRow(req *UploadRequest, locator string, agg AggregatedSticker) LabelRow {
	row := LabelRow{
		RunID:          req.RunID,
		DocumentName:   req.DocumentName,
		UserID:         req.UserID,
		StorageLocator: locator,
		Brand:          agg.Brand,
		Product:        agg.Product,
		Dimensions:     agg.Dimensions,
		GTIN:           agg.GTIN,
		Ref:            agg.Ref,
		Lot:            agg.Lot,
		Quantity:       agg.Quantity,
		CreatedAt:      time.Now().UTC(),
	}
	if p := req.Procedure; p != nil {
		row.ProcedureDate = p.Date
		row.Hospital = p.Hospital
		row.Doctor = p.Doctor
		row.ProcedureName = p.ProcedureName
		row.BillingNo = p.BillingNo
	}
	return row
}
