package mailer

import "html/template"

const (
	eventDate  = "February 23, 2026"
	eventTime  = "1:30 PM onwards"
	eventVenue = "SRKR Engineering College"
)

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>IconCoderz 2K26 Registration</title></head>
<body style="font-family: 'Segoe UI', Tahoma, sans-serif; background-color: #f5f5f5;">
  <div style="max-width: 600px; margin: 40px auto; background: #ffffff; border-radius: 12px; overflow: hidden;">
    <div style="background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); padding: 32px; text-align: center;">
      <h1 style="color: #ffffff; margin: 0;">Registration Confirmed</h1>
    </div>
    <div style="padding: 32px;">
      <h2>Hi {{.FullName}}!</h2>
      <p>Your registration for <strong>IconCoderz 2K26</strong> has been received. Your payment will be verified by the organisers.</p>
      <table style="width: 100%; border-collapse: collapse;">
        <tr><td><strong>Registration Code</strong></td><td>{{.RegistrationCode}}</td></tr>
        <tr><td><strong>Registration Number</strong></td><td>{{.RegistrationNumber}}</td></tr>
        <tr><td><strong>Email</strong></td><td>{{.To}}</td></tr>
        <tr><td><strong>Phone</strong></td><td>{{.Phone}}</td></tr>
        <tr><td><strong>Branch / Year</strong></td><td>{{.Branch}} / {{.YearOfStudy}}</td></tr>
        {{with .CodechefHandle}}<tr><td><strong>CodeChef</strong></td><td>{{.}}</td></tr>{{end}}
        {{with .LeetcodeHandle}}<tr><td><strong>LeetCode</strong></td><td>{{.}}</td></tr>{{end}}
        {{with .CodeforcesHandle}}<tr><td><strong>Codeforces</strong></td><td>{{.}}</td></tr>{{end}}
      </table>
      <p style="text-align: center;">Show this QR code at the venue:</p>
      <p style="text-align: center;"><img src="cid:qrcode" alt="QR Code" width="256" height="256" /></p>
      <p><strong>` + eventDate + `</strong>, ` + eventTime + ` at ` + eventVenue + `</p>
    </div>
  </div>
</body>
</html>`))

var attendanceTemplate = template.Must(template.New("attendance").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Welcome to IconCoderz 2K26</title></head>
<body style="font-family: 'Segoe UI', Tahoma, sans-serif; background-color: #f5f5f5;">
  <div style="max-width: 600px; margin: 40px auto; background: #ffffff; border-radius: 12px; overflow: hidden;">
    <div style="background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); padding: 32px; text-align: center;">
      <h1 style="color: #ffffff; margin: 0;">Welcome to IconCoderz 2K26!</h1>
    </div>
    <div style="padding: 32px;">
      <h2>Hi {{.FullName}}!</h2>
      <p><strong>Thanks for attending IconCoderz 2K26!</strong></p>
      <p>We're excited to have you here. Get ready to challenge yourself and connect with fellow coders.</p>
      <p><strong>` + eventDate + `</strong>, ` + eventTime + ` at ` + eventVenue + `</p>
    </div>
  </div>
</body>
</html>`))
