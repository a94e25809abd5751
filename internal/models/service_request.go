package models

import "time"

type ServiceRequest struct {
	ID            int64     `json:"id"`
	Status        string    `json:"status"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	City          string    `json:"city"`
	PostalCode    string    `json:"postal_code"`
	ApplianceType string    `json:"appliance_type"`
	Brand         string    `json:"brand"`
	ApplianceAge  string    `json:"appliance_age"`
	PreferredTime string    `json:"preferred_time"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ServiceRequestInput carries the customer-editable fields of a booking.
type ServiceRequestInput struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	City          string `json:"city"`
	PostalCode    string `json:"postal_code"`
	ApplianceType string `json:"appliance_type"`
	Brand         string `json:"brand"`
	ApplianceAge  string `json:"appliance_age"`
	PreferredTime string `json:"preferred_time"`
	Message       string `json:"message"`
}

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Input returns the editable fields of the request.
func (r ServiceRequest) Input() ServiceRequestInput {
	return ServiceRequestInput{
		Name:          r.Name,
		Email:         r.Email,
		Phone:         r.Phone,
		City:          r.City,
		PostalCode:    r.PostalCode,
		ApplianceType: r.ApplianceType,
		Brand:         r.Brand,
		ApplianceAge:  r.ApplianceAge,
		PreferredTime: r.PreferredTime,
		Message:       r.Message,
	}
}

// Apply overwrites the editable fields, leaving id, status and timestamps alone.
func (r *ServiceRequest) Apply(input ServiceRequestInput) {
	r.Name = input.Name
	r.Email = input.Email
	r.Phone = input.Phone
	r.City = input.City
	r.PostalCode = input.PostalCode
	r.ApplianceType = input.ApplianceType
	r.Brand = input.Brand
	r.ApplianceAge = input.ApplianceAge
	r.PreferredTime = input.PreferredTime
	r.Message = input.Message
}
