package models

import (
	"time"
)

// Gender is the self-declared gender of a profile.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Valid reports whether g is one of the known genders.
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// AgeGroup is the coarse age bucket that partitions discovery.
type AgeGroup string

const (
	AgeGroupTeen  AgeGroup = "13-17"
	AgeGroupAdult AgeGroup = "18-100"
)

// MinimumAge is the youngest age allowed to hold a profile.
const MinimumAge = 13

// AgeAt returns the number of full years between birth and now.
func AgeAt(birth, now time.Time) int {
	birth = birth.UTC()
	now = now.UTC()
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	return years
}

// AgeGroupFor buckets an age. Ages under MinimumAge have no bucket.
func AgeGroupFor(age int) (AgeGroup, bool) {
	switch {
	case age < MinimumAge:
		return "", false
	case age < 18:
		return AgeGroupTeen, true
	default:
		return AgeGroupAdult, true
	}
}

// Profile is the discoverable identity of a user. One per user.
type Profile struct {
	Record
	UserID            string    `gorm:"size:128;not null" json:"user_id"`
	DisplayName       string    `gorm:"size:64;not null" json:"display_name"`
	Handle            string    `gorm:"size:30;not null" json:"handle"`
	PictureRef        string    `json:"picture_ref,omitempty"`
	Gender            Gender    `gorm:"size:16;not null" json:"gender"`
	BirthDate         time.Time `gorm:"not null" json:"birth_date"`
	Age               int       `gorm:"not null" json:"age"`
	AgeGroup          AgeGroup  `gorm:"size:8;not null" json:"age_group"`
	Country           string    `gorm:"size:2" json:"country"`
	LanguagesSpoken   []string  `gorm:"serializer:json" json:"languages_spoken"`
	LanguagesLearning []string  `gorm:"serializer:json" json:"languages_learning"`
	Bio               string    `gorm:"type:text" json:"bio"`
	Hobbies           []string  `gorm:"serializer:json" json:"hobbies"`
	VisitedCountries  []string  `gorm:"serializer:json" json:"visited_countries"`
	WantToVisit       []string  `gorm:"serializer:json" json:"want_to_visit"`
	FavoriteBooks     []string  `gorm:"serializer:json" json:"favorite_books"`
	GenderPreference  bool      `gorm:"not null;default:false" json:"gender_preference"`
	IsAdmin           bool      `gorm:"not null;default:false" json:"is_admin"`
	LastActiveAt      time.Time `gorm:"not null" json:"last_active_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Profile) TableName() string {
	return "profiles"
}

// Kind implements Entity.
func (Profile) Kind() Kind { return KindProfile }

// Derive recomputes age and age group from the birth date.
func (p *Profile) Derive(now time.Time) error {
	age := AgeAt(p.BirthDate, now)
	group, ok := AgeGroupFor(age)
	if !ok {
		return NewValidationError("Profiles require a minimum age of 13")
	}
	p.Age = age
	p.AgeGroup = group
	return nil
}

// Refresh recomputes age and age group at now and reports whether either
// moved. A birth date that no longer yields a bucket leaves p untouched.
func (p *Profile) Refresh(now time.Time) bool {
	age := AgeAt(p.BirthDate, now)
	group, ok := AgeGroupFor(age)
	if !ok || (age == p.Age && group == p.AgeGroup) {
		return false
	}
	p.Age = age
	p.AgeGroup = group
	return true
}

// Accepts reports whether p may see other under the gender-preference rule:
// a profile with the preference set only sees, and is only seen by, its own
// gender.
func (p *Profile) Accepts(other *Profile) bool {
	if p.GenderPreference && other.Gender != p.Gender {
		return false
	}
	if other.GenderPreference && other.Gender != p.Gender {
		return false
	}
	return true
}

// Speaks reports whether lang is in the spoken set.
func (p *Profile) Speaks(lang string) bool {
	return contains(p.LanguagesSpoken, lang)
}

// Learns reports whether lang is in the learning set.
func (p *Profile) Learns(lang string) bool {
	return contains(p.LanguagesLearning, lang)
}

// Summary returns the public view of the profile shown in discovery.
func (p *Profile) Summary() ProfileSummary {
	return ProfileSummary{
		UserID:            p.UserID,
		DisplayName:       p.DisplayName,
		Handle:            p.Handle,
		PictureRef:        p.PictureRef,
		Gender:            p.Gender,
		Age:               p.Age,
		AgeGroup:          p.AgeGroup,
		Country:           p.Country,
		LanguagesSpoken:   p.LanguagesSpoken,
		LanguagesLearning: p.LanguagesLearning,
		Bio:               p.Bio,
		Hobbies:           p.Hobbies,
		LastActiveAt:      p.LastActiveAt,
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
