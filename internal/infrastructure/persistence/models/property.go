package models

import (
	"github.com/commledger/backend/internal/domain/property"
)

// PropertyModel is the persistence model for the Property domain entity.
type PropertyModel struct {
	AggregateModel
	PlotNumber string `gorm:"type:varchar(20);not null;index"`
	Street     string `gorm:"type:varchar(255)"`
	OwnerName  string `gorm:"type:varchar(255);index"`
	Phone      string `gorm:"type:varchar(20);index"`
	Address    string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (PropertyModel) TableName() string {
	return "properties"
}

// ToDomain converts the persistence model to a domain Property entity.
func (m *PropertyModel) ToDomain() *property.Property {
	p := &property.Property{
		PlotNumber: m.PlotNumber,
		Street:     m.Street,
		OwnerName:  m.OwnerName,
		Phone:      m.Phone,
		Address:    m.Address,
	}
	m.PopulateAggregateRoot(&p.BaseAggregateRoot)
	return p
}

// FromDomain populates the persistence model from a domain Property entity.
func (m *PropertyModel) FromDomain(p *property.Property) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.PlotNumber = p.PlotNumber
	m.Street = p.Street
	m.OwnerName = p.OwnerName
	m.Phone = p.Phone
	m.Address = p.Address
}

// PropertyModelFromDomain creates a new persistence model from a domain Property entity.
func PropertyModelFromDomain(p *property.Property) *PropertyModel {
	m := &PropertyModel{}
	m.FromDomain(p)
	return m
}
