package classify

// Condition is the patient-facing description of a label.
type Condition struct {
	Label       string
	DisplayName string
	ImageFolder string
	Tagline     string
	Description string
	Symptoms    string
	Treatment   string
}

// Catalog lists every label in training order.
var Catalog = []Condition{
	{
		Label:       "Retinal Vein Occlusion",
		DisplayName: "Retinal Vein Occlusion (RVO)",
		ImageFolder: "Retinal Vein Occlusion",
		Tagline:     "A serious vascular blockage requiring urgent attention.",
		Description: "RVO is the blockage of small veins that carry blood away from the retina. This leads to blood and fluid leakage, causing a rapid and often severe loss of vision. It is a critical risk, especially for those with high blood pressure or diabetes.",
		Symptoms:    "Sudden, painless blurring or loss of vision, often described as a dark shadow or blind spot.",
		Treatment:   "Intravitreal injections (e.g., anti-VEGF), laser photocoagulation, and strict management of underlying systemic conditions like hypertension.",
	},
	{
		Label:       "ageDegeneration",
		DisplayName: "Age-related Macular Degeneration (AMD)",
		ImageFolder: "ageDegeneration",
		Tagline:     "The leading cause of vision loss in older adults.",
		Description: "AMD causes damage to the macula, the central part of the retina responsible for sharp, detailed central vision. It progresses in two forms: dry (gradual) and wet (rapid leakage/bleeding).",
		Symptoms:    "Blurred or 'wavy' central vision, dark, blank spots, and difficulty recognizing faces or reading fine print.",
		Treatment:   "For dry AMD: high-dose antioxidant and mineral supplements (AREDS). For wet AMD: regular anti-VEGF injections to stop new blood vessel growth.",
	},
	{
		Label:       "cataract",
		DisplayName: "Cataract",
		ImageFolder: "cataract",
		Tagline:     "Clouding of the eye's lens, easily treatable.",
		Description: "A cataract is a clouding of the normally clear lens of the eye, which eventually obstructs the passage of light, leading to blurry vision. While common with age, it is highly treatable.",
		Symptoms:    "Hazy or blurred vision, colors appearing faded, poor night vision, and increased sensitivity to glare/lights.",
		Treatment:   "Surgical removal of the cloudy lens and replacement with an artificial intraocular lens (IOL) is highly effective.",
	},
	{
		Label:       "diabetes",
		DisplayName: "Diabetic Retinopathy (DR)",
		ImageFolder: "diabetes",
		Tagline:     "Damage to retinal vessels caused by high blood sugar.",
		Description: "Diabetic Retinopathy is a complication of diabetes that damages the blood vessels in the light-sensitive tissue at the back of the eye (retina). It is a progressive condition that can lead to irreversible blindness if not managed.",
		Symptoms:    "Floaters, blurred vision, impaired color vision, and areas of missing or dark vision.",
		Treatment:   "Strict blood sugar and blood pressure control. Advanced treatments include anti-VEGF injections, steroids, and vitrectomy surgery for severe cases.",
	},
	{
		Label:       "myopia",
		DisplayName: "Pathologic Myopia (High Nearsightedness)",
		ImageFolder: "myopia",
		Tagline:     "Severe nearsightedness posing retinal detachment risk.",
		Description: "Pathologic Myopia is a severe form of nearsightedness where the eyeball stretches too much. This extreme stretching thins and damages the retina, increasing the risk of complications like retinal detachment, macular degeneration, and glaucoma.",
		Symptoms:    "Extremely poor distant vision, severe distortion, and visual field loss.",
		Treatment:   "Correction with glasses or contacts. Monitoring and surgical intervention (e.g., laser) to address secondary complications like retinal tears or holes.",
	},
	{
		Label:       "normal",
		DisplayName: "Healthy Retina",
		ImageFolder: "normal",
		Tagline:     "Clear vision and optimal retinal health.",
		Description: "This diagnosis indicates a healthy fundus (retina) without visible signs of the common diseases monitored by this screening tool. Regular checkups are still vital for long-term preventative care.",
		Symptoms:    "Clear, stable vision and absence of visual disturbances.",
		Treatment:   "Maintain regular comprehensive eye examinations, especially after age 40, and manage overall health (diet, exercise, blood pressure).",
	},
}

// Lookup returns the catalog entry for a label.
func Lookup(label string) (Condition, bool) {
	for _, c := range Catalog {
		if c.Label == label {
			return c, true
		}
	}
	return Condition{}, false
}
