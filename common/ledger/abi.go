package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const datasetSBTABIJSON = `[
  {"type":"function","name":"registerDataset","stateMutability":"nonpayable",
   "inputs":[{"name":"_ipfsHash","type":"string"},{"name":"_metadata","type":"string"},{"name":"_licenseTerms","type":"string"},{"name":"_price","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"datasets","stateMutability":"view",
   "inputs":[{"name":"","type":"uint256"}],
   "outputs":[{"name":"ipfsHash","type":"string"},{"name":"metadata","type":"string"},{"name":"licenseTerms","type":"string"},{"name":"provider","type":"address"},{"name":"price","type":"uint256"},{"name":"isActive","type":"bool"},{"name":"version","type":"uint256"},{"name":"createdAt","type":"uint256"}]},
  {"type":"function","name":"hasValidLicense","stateMutability":"view",
   "inputs":[{"name":"_user","type":"address"},{"name":"_datasetId","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getUserLicenses","stateMutability":"view",
   "inputs":[{"name":"_user","type":"address"}],
   "outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"licenses","stateMutability":"view",
   "inputs":[{"name":"","type":"uint256"}],
   "outputs":[{"name":"datasetId","type":"uint256"},{"name":"licensee","type":"address"},{"name":"issuedAt","type":"uint256"},{"name":"expiresAt","type":"uint256"},{"name":"isActive","type":"bool"}]},
  {"type":"function","name":"registerAsProvider","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"isDatasetProvider","stateMutability":"view",
   "inputs":[{"name":"_address","type":"address"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"datasetCounter","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"licenseCounter","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"DatasetRegistered","anonymous":false,
   "inputs":[{"name":"datasetId","type":"uint256","indexed":true},{"name":"provider","type":"address","indexed":true},{"name":"ipfsHash","type":"string","indexed":false}]},
  {"type":"event","name":"LicenseIssued","anonymous":false,
   "inputs":[{"name":"licenseId","type":"uint256","indexed":true},{"name":"datasetId","type":"uint256","indexed":true},{"name":"licensee","type":"address","indexed":true}]},
  {"type":"event","name":"ProviderRegistered","anonymous":false,
   "inputs":[{"name":"provider","type":"address","indexed":true}]}
]`

const marketplaceABIJSON = `[
  {"type":"function","name":"canAccessDataset","stateMutability":"view",
   "inputs":[{"name":"_user","type":"address"},{"name":"_datasetId","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getDatasetInfo","stateMutability":"view",
   "inputs":[{"name":"_datasetId","type":"uint256"}],
   "outputs":[{"name":"ipfsHash","type":"string"},{"name":"metadata","type":"string"},{"name":"licenseTerms","type":"string"},{"name":"provider","type":"address"},{"name":"price","type":"uint256"},{"name":"isActive","type":"bool"},{"name":"version","type":"uint256"},{"name":"createdAt","type":"uint256"}]},
  {"type":"function","name":"platformFee","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	datasetSBTABI  = mustParseABI(datasetSBTABIJSON)
	marketplaceABI = mustParseABI(marketplaceABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
