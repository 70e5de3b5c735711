// Package report renders loan ledger exports.
package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"sipinjam/internal/ledger"
)

// Row is a single line of the circulation report.
type Row struct {
	No         int    `json:"no"`
	LoanID     string `json:"loan_id"`
	BorrowerID string `json:"borrower_id"`
	Role       string `json:"role"`
	ItemName   string `json:"item_name"`
	BorrowDate string `json:"borrow_date"`
	DueDate    string `json:"due_date"`
	Status     string `json:"status"`
}

const dateLayout = "2006-01-02"

// Build projects loans into report rows. Item names come from the
// inventory; a loan whose item is unknown falls back to the numeric id.
func Build(loans []ledger.Loan, itemNames map[int64]string) []Row {
	rows := make([]Row, 0, len(loans))
	for i, loan := range loans {
		name, ok := itemNames[loan.ItemID]
		if !ok {
			name = "#" + strconv.FormatInt(loan.ItemID, 10)
		}
		rows = append(rows, Row{
			No:         i + 1,
			LoanID:     loan.ID.String(),
			BorrowerID: loan.BorrowerID,
			Role:       string(loan.Role),
			ItemName:   name,
			BorrowDate: loan.BorrowDate.Format(dateLayout),
			DueDate:    loan.DueDate.Format(dateLayout),
			Status:     string(loan.Status),
		})
	}
	return rows
}

var csvHeader = []string{"No", "Loan ID", "Borrower ID", "Role", "Item", "Borrow Date", "Due Date", "Status"}

// WriteCSV streams rows as CSV, header first.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			strconv.Itoa(row.No),
			row.LoanID,
			row.BorrowerID,
			row.Role,
			row.ItemName,
			row.BorrowDate,
			row.DueDate,
			row.Status,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
