package businessflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/xuri/excelize/v2"
)

const exportSheetName = "QR Codes"

// exportBatchSize keeps memory bounded while paging through large tables
const exportBatchSize = 500

// ExportCodes writes every QR code with its click statistics into an xlsx
// workbook and returns the file name and content.
func (f *QRCodeFlowImpl) ExportCodes(ctx context.Context) (string, []byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName(file.GetSheetName(0), exportSheetName); err != nil {
		return "", nil, fmt.Errorf("failed to prepare export sheet: %w", err)
	}

	headers := []string{"ID", "Slug", "Public URL", "Destination URL", "Title", "Tags", "Clicks", "Versions", "Favorite Version ID", "Created At"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return "", nil, err
		}
		if err := file.SetCellValue(exportSheetName, cell, header); err != nil {
			return "", nil, err
		}
	}

	row := 2
	for offset := 0; ; offset += exportBatchSize {
		codes, err := f.codeRepo.ByFilter(ctx, models.QRCodeFilter{}, "id ASC", exportBatchSize, offset)
		if err != nil {
			return "", nil, fmt.Errorf("failed to load QR codes for export: %w", err)
		}
		if len(codes) == 0 {
			break
		}
		for _, code := range codes {
			versionCount, err := f.versionRepo.CountByCode(ctx, code.ID)
			if err != nil {
				return "", nil, fmt.Errorf("failed to count versions for code %d: %w", code.ID, err)
			}
			values := []any{
				code.ID,
				code.Slug,
				PublicURL(f.cfg.BasePublicURL, code.Slug),
				code.DestinationURL,
				utils.DerefOr(code.Title, ""),
				strings.Join(code.Tags, ", "),
				code.ClickCount,
				versionCount,
				derefUint(code.FavoriteVersionID),
				utils.TimeToRFC3339(code.CreatedAt),
			}
			for i, value := range values {
				cell, err := excelize.CoordinatesToCellName(i+1, row)
				if err != nil {
					return "", nil, err
				}
				if err := file.SetCellValue(exportSheetName, cell, value); err != nil {
					return "", nil, err
				}
			}
			row++
		}
		if len(codes) < exportBatchSize {
			break
		}
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return "", nil, fmt.Errorf("failed to serialize export workbook: %w", err)
	}

	fileName := fmt.Sprintf("qr-codes-%s.xlsx", utils.UTCNow().Format("2006-01-02-150405"))
	return fileName, buf.Bytes(), nil
}

func derefUint(p *uint) any {
	if p == nil {
		return ""
	}
	return *p
}
