package audit

import (
	csvwriter "encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/azure/enterprise-policy-linker/types"

	"github.com/sirupsen/logrus"
)

type ICsvExportClient interface {
	Export(outcome *types.LinkageOutcome, fileName string) error
}

type CsvExportClient struct {
	WorkingFolderPath string
	Header            []string
	Logger            *logrus.Logger
}

func NewCsvExportClient(workingFolderPath string, logger *logrus.Logger) *CsvExportClient {
	return &CsvExportClient{
		WorkingFolderPath: workingFolderPath,
		Header:            []string{"Sequence", "Action", "Api Version", "Body Variant", "Http Status", "Error Code", "Error Message", "Correlation ID", "Operation Location", "Final Status"},
		Logger:            logger,
	}
}

// Export writes one CSV row per attempt, in the order the attempts were made.
// Attempt order is meaningful (the matrix sweep is deterministic), so rows
// are sequence-numbered rather than sorted.
func (csvClient *CsvExportClient) Export(outcome *types.LinkageOutcome, fileName string) error {
	csvData := [][]string{csvClient.Header}
	for i, attempt := range outcome.Attempts {
		csvData = append(csvData, []string{
			strconv.Itoa(i + 1),
			string(attempt.Action),
			attempt.APIVersion,
			string(attempt.BodyVariant),
			strconv.Itoa(attempt.HTTPStatus),
			attempt.ErrorCode,
			attempt.ErrorMessage,
			attempt.CorrelationID,
			attempt.OperationLocation,
			string(attempt.FinalStatus),
		})
	}

	csvFilePath := filepath.Join(csvClient.WorkingFolderPath, fileName)
	csvFile, err := os.Create(csvFilePath)
	if err != nil {
		return err
	}
	defer csvFile.Close()

	writer := csvwriter.NewWriter(csvFile)
	defer writer.Flush()
	if err := writer.WriteAll(csvData); err != nil {
		return err
	}
	csvClient.Logger.Infof("Attempt history written to %s", csvFilePath)
	return nil
}
