package model

// ParcelPrice is the default amount charged per parcel when the client does
// not send a usable totalAmount.
const ParcelPrice = 75

// Donation は寄付フォームから送られた支援パッケージの寄付申込
type Donation struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	ParcelName  string `json:"parcelName"`
	ParcelCount int    `json:"parcelCount"`
	TotalAmount int    `json:"totalAmount"`
	Date        string `json:"date"`
}

// Volunteer represents a volunteer sign-up.
type Volunteer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Help    string `json:"help"`
	Message string `json:"message"`
	Date    string `json:"date"`
}
