package domain

// WalletSchema PSP 錢包資訊中餘額欄位的契約
// Version 變更代表 PSP 回應格式改了，Fields 依序比對，第一個有值的欄位勝出
type WalletSchema struct {
	Version string
	Fields  []string
	// Envelope 若頂層找不到，再往這個物件裡面找 (例如 {"data": {...}})
	Envelope string
}

// WalletSchemaV1 目前 Singpay 觀察到的四種寫法
var WalletSchemaV1 = WalletSchema{
	Version:  "v1",
	Fields:   []string{"balance", "solde", "available_balance", "availableBalance"},
	Envelope: "data",
}

// UnknownBalance 找不到餘額時顯示的值
const UnknownBalance = "unknown"

// Extract 取出顯示用的餘額，只供顯示，絕不可當作帳本依據
func (s WalletSchema) Extract(payload map[string]any) (any, bool) {
	if payload == nil {
		return nil, false
	}
	if v, ok := s.lookup(payload); ok {
		return v, true
	}
	if s.Envelope == "" {
		return nil, false
	}
	if inner, ok := payload[s.Envelope].(map[string]any); ok {
		return s.lookup(inner)
	}
	return nil, false
}

func (s WalletSchema) lookup(m map[string]any) (any, bool) {
	for _, f := range s.Fields {
		if v, ok := m[f]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// ExtractWalletBalance 以 WalletSchemaV1 取出餘額，找不到時回傳 UnknownBalance
func ExtractWalletBalance(payload map[string]any) any {
	if v, ok := WalletSchemaV1.Extract(payload); ok {
		return v
	}
	return UnknownBalance
}
