package models

import (
	"github.com/srkrcodingclub/iconcoderz/go/internal/db"
	"github.com/srkrcodingclub/iconcoderz/go/internal/sqlutil"
)

// RegistrationFromDB converts a database row to the domain model
func RegistrationFromDB(r db.Registration) *Registration {
	return &Registration{
		ID:                    r.ID,
		RegistrationCode:      r.RegistrationCode,
		FullName:              r.FullName,
		RegistrationNumber:    r.RegistrationNumber,
		Email:                 r.Email,
		Phone:                 r.Phone,
		CollegeName:           r.CollegeName,
		YearOfStudy:           r.YearOfStudy,
		Branch:                r.Branch,
		Gender:                r.Gender,
		IsCodingClubAffiliate: r.IsCodingClubAffiliate,
		AffiliateID:           sqlutil.FromSqlStringPtr(r.AffiliateID),
		CodechefHandle:        sqlutil.FromSqlStringPtr(r.CodechefHandle),
		LeetcodeHandle:        sqlutil.FromSqlStringPtr(r.LeetcodeHandle),
		CodeforcesHandle:      sqlutil.FromSqlStringPtr(r.CodeforcesHandle),
		TransactionID:         r.TransactionID,
		ScreenshotURL:         r.ScreenshotUrl,
		PaymentStatus:         PaymentStatus(r.PaymentStatus),
		Attended:              r.Attended,
		AttendedAt:            sqlutil.FromSqlTime(r.AttendedAt),
		AttendedBy:            sqlutil.FromSqlStringPtr(r.AttendedBy),
		CheckInCount:          int(r.CheckInCount),
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

// AttendanceScanFromDB converts a recent-scan row to the domain model
func AttendanceScanFromDB(r db.ListRecentScansRow) AttendanceScan {
	return AttendanceScan{
		ID:               r.ID,
		RegistrationID:   r.RegistrationID,
		AdminID:          r.AdminID,
		IPAddress:        sqlutil.FromSqlStringPtr(r.IpAddress),
		ScannedAt:        r.ScannedAt,
		FullName:         r.FullName,
		RegistrationCode: r.RegistrationCode,
		Branch:           r.Branch,
		YearOfStudy:      r.YearOfStudy,
	}
}
