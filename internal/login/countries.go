package login

// Country is a selectable calling code.
type Country struct {
	Code string
	Name string
}

// DefaultCountryCode is preselected on the phone step.
const DefaultCountryCode = "+91"

// Countries is the fixed list of calling codes offered on the phone step, in display order.
var Countries = []Country{
	{Code: "+91", Name: "India"},
	{Code: "+44", Name: "UK"},
	{Code: "+1", Name: "USA"},
	{Code: "+86", Name: "China"},
	{Code: "+81", Name: "Japan"},
}

// LookupCountry returns the country for a calling code.
func LookupCountry(code string) (Country, bool) {
	for _, c := range Countries {
		if c.Code == code {
			return c, true
		}
	}
	return Country{}, false
}
