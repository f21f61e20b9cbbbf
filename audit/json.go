package audit

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/azure/enterprise-policy-linker/types"

	"github.com/sirupsen/logrus"
)

type IJsonExportClient interface {
	Export(outcome *types.LinkageOutcome, fileName string) error
}

type JsonExportClient struct {
	WorkingFolderPath string
	Logger            *logrus.Logger
}

func NewJsonExportClient(workingFolderPath string, logger *logrus.Logger) *JsonExportClient {
	return &JsonExportClient{
		WorkingFolderPath: workingFolderPath,
		Logger:            logger,
	}
}

// Export writes the run's outcome and full attempt history as JSON into the
// working folder.
func (jsonClient *JsonExportClient) Export(outcome *types.LinkageOutcome, fileName string) error {
	encoded, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return err
	}
	jsonFilePath := filepath.Join(jsonClient.WorkingFolderPath, fileName)
	if err := os.WriteFile(jsonFilePath, encoded, 0644); err != nil {
		return err
	}
	jsonClient.Logger.Infof("Attempt history written to %s", jsonFilePath)
	return nil
}
