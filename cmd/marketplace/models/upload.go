package models

// UploadJob is one spooled upload waiting to be processed. TempPath is
// removed once the job finishes, whatever the outcome.
type UploadJob struct {
	ID               string
	TempPath         string
	OriginalFilename string
	Size             int64
	Metadata         string
	LicenseTerms     string
	Price            string
	Provider         string
}

// UploadResult is returned to the client after a successful upload
type UploadResult struct {
	Success         bool                   `json:"success"`
	IpfsHash        string                 `json:"ipfsHash"`
	TransactionHash string                 `json:"transactionHash"`
	BlockNumber     uint64                 `json:"blockNumber"`
	GasUsed         uint64                 `json:"gasUsed"`
	DatasetID       *uint64                `json:"datasetId"`
	FileSize        int64                  `json:"fileSize"`
	OriginalSize    int64                  `json:"originalSize"`
	Encrypted       bool                   `json:"encrypted"`
	KeyCustody      string                 `json:"keyCustody"`
	EncryptionKey   string                 `json:"encryptionKey,omitempty"`
	Metadata        map[string]interface{} `json:"metadata"`
	Price           string                 `json:"price"`
	LicenseTerms    string                 `json:"licenseTerms"`
	Provider        string                 `json:"provider"`
	Message         string                 `json:"message"`
}
