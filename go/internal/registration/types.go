package registration

import (
	"errors"

	"github.com/srkrcodingclub/iconcoderz/go/internal/validation"
)

// UserInput is the registration form as submitted by a participant.
type UserInput struct {
	FullName              string  `json:"fullName" validate:"required,max=100"`
	RegistrationNumber    string  `json:"registrationNumber" validate:"required,alphanum,len=10"`
	Email                 string  `json:"email" validate:"required,email,max=50"`
	Phone                 string  `json:"phone" validate:"required,numeric,len=10"`
	CollegeName           string  `json:"collegeName" validate:"required,max=50"`
	YearOfStudy           string  `json:"yearOfStudy" validate:"required,oneof=FIRST_YEAR SECOND_YEAR THIRD_YEAR FOURTH_YEAR"`
	Branch                string  `json:"branch" validate:"required,oneof=CSE IT ECE EEE MECH CIVIL CSD CSM AIDS AIML CSBS OTHER"`
	Gender                string  `json:"gender" validate:"required,oneof=MALE FEMALE OTHER"`
	IsCodingClubAffiliate bool    `json:"isCodingClubAffiliate"`
	AffiliateID           *string `json:"affiliateId,omitempty" validate:"omitempty,max=10"`
	CodechefHandle        *string `json:"codechefHandle,omitempty" validate:"omitempty,max=20"`
	LeetcodeHandle        *string `json:"leetcodeHandle,omitempty" validate:"omitempty,max=20"`
	CodeforcesHandle      *string `json:"codeforcesHandle,omitempty" validate:"omitempty,max=20"`
	TransactionID         string  `json:"transactionId" validate:"required,min=8,max=20"`
	ScreenshotURL         string  `json:"screenshotUrl" validate:"required,url,max=2048"`
	ConfirmInfo           *bool   `json:"confirmInfo,omitempty"`
}

var errNotConfirmed = &validation.Error{Field: "confirmInfo", Message: "Information must be confirmed"}

// Validate checks the form against its field rules.
func (in UserInput) Validate() error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	if in.ConfirmInfo != nil && !*in.ConfirmInfo {
		return errNotConfirmed
	}
	return nil
}

// Filter narrows the admin registration listing. Empty fields match
// everything.
type Filter struct {
	PaymentStatus string `json:"paymentStatus,omitempty" validate:"omitempty,oneof=PENDING VERIFIED REJECTED"`
	Branch        string `json:"branch,omitempty" validate:"omitempty,oneof=CSE IT ECE EEE MECH CIVIL CSD CSM AIDS AIML CSBS OTHER"`
	YearOfStudy   string `json:"yearOfStudy,omitempty" validate:"omitempty,oneof=FIRST_YEAR SECOND_YEAR THIRD_YEAR FOURTH_YEAR"`
	Search        string `json:"search,omitempty" validate:"max=100"`
}

// IsValidationError reports whether err came from input validation.
func IsValidationError(err error) bool {
	return errors.Is(err, validation.ErrInvalid)
}
