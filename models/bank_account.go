package models

// BankAccount содержит реквизиты для банковского перевода. Встраивается
// в User (реквизиты получателя) и в Debt (реквизиты, указанные в долге).
type BankAccount struct {
	BankName      string `gorm:"column:bank_name;size:100" json:"bankName,omitempty"`
	AccountName   string `gorm:"column:account_name;size:100" json:"accountName,omitempty"`
	AccountNumber string `gorm:"column:account_number;size:34" json:"accountNumber,omitempty"`
}

// IsComplete сообщает, заполнены ли реквизиты для перевода
func (b BankAccount) IsComplete() bool {
	return b.BankName != "" && b.AccountName != "" && b.AccountNumber != ""
}
